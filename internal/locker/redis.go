package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog"
)

// Redis shares per-key locks between server replicas through redislock. A held lock is
// refreshed every TTL/2 until released. When a refresh fails (Redis unreachable for
// longer than the TTL) the key can expire under a live holder; the failure is logged.
type Redis struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	log    zerolog.Logger
}

type RedisOptions struct {
	Prefix string
	// TTL bounds how long a crashed holder can keep the key.
	TTL time.Duration
	// Wait bounds how long Lock retries before giving up with ErrNotObtained.
	Wait time.Duration
}

func NewRedis(client redislock.RedisClient, opts RedisOptions, log zerolog.Logger) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = opts.TTL
	}
	if opts.Prefix == "" {
		opts.Prefix = "backoffice:lock:"
	}
	return &Redis{
		client: redislock.New(client),
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		wait:   opts.Wait,
		log:    log,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	obtainCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	lock, err := r.client.Obtain(obtainCtx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(25 * time.Millisecond),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
		}
		return nil, fmt.Errorf("obtain redis lock %s: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(lock, key, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.log.Warn().Err(err).Str("key", key).Msg("failed to release redis lock")
			}
		})
	}, nil
}

// keepAlive extends lock by a full TTL every TTL/2 until stop closes.
func (r *Redis) keepAlive(lock *redislock.Lock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/2)
			err := lock.Refresh(ctx, r.ttl, nil)
			cancel()
			if err != nil {
				r.log.Warn().Err(err).Str("key", key).Msg("failed to refresh redis lock")
				if errors.Is(err, redislock.ErrNotObtained) {
					return
				}
			}
		}
	}
}
