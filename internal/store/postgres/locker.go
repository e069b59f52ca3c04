package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kasirinaja/backoffice/internal/locker"
)

const (
	minAdvisoryPoll = 10 * time.Millisecond
	maxAdvisoryPoll = 250 * time.Millisecond
)

type AdvisoryOptions struct {
	Prefix string
	// Wait bounds how long Lock polls before giving up with locker.ErrNotObtained.
	Wait time.Duration
}

// AdvisoryLocker serializes holders of a key across server replicas with Postgres
// session advisory locks. A held lock pins one pooled connection until released.
// Waiters poll pg_try_advisory_lock and hand their connection back between tries, so
// they never starve the holder of the pool.
type AdvisoryLocker struct {
	db     *sql.DB
	prefix string
	wait   time.Duration
	log    zerolog.Logger
}

func NewAdvisoryLocker(db *sql.DB, opts AdvisoryOptions, log zerolog.Logger) *AdvisoryLocker {
	if opts.Prefix == "" {
		opts.Prefix = "backoffice:"
	}
	if opts.Wait <= 0 {
		opts.Wait = 30 * time.Second
	}
	return &AdvisoryLocker{db: db, prefix: opts.Prefix, wait: opts.Wait, log: log}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := advisoryKey(l.prefix + key)
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	delay := minAdvisoryPoll
	for {
		conn, err := l.tryLock(ctx, lockKey)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquiring advisory lock %s: %w", key, err)
		}
		if conn != nil {
			return l.releaser(conn, key, lockKey), nil
		}

		wait := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			wait.Stop()
			return nil, fmt.Errorf("%w: %s", locker.ErrNotObtained, key)
		case <-wait.C:
		}
		delay = min(delay*2, maxAdvisoryPoll)
	}
}

// tryLock returns the connection holding the lock, or nil when another session holds it.
func (l *AdvisoryLocker) tryLock(ctx context.Context, lockKey int64) (*sql.Conn, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, classify("advisory lock conn", err)
	}
	var obtained bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&obtained); err != nil {
		_ = conn.Close()
		return nil, classify("advisory lock", err)
	}
	if !obtained {
		_ = conn.Close()
		return nil, nil
	}
	return conn, nil
}

func (l *AdvisoryLocker) releaser(conn *sql.Conn, key string, lockKey int64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := conn.ExecContext(releaseCtx, "SELECT pg_advisory_unlock($1)", lockKey); err != nil {
				// The session lock dies with the connection, so drop it from the pool.
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
				l.log.Warn().Err(err).Str("key", key).Msg("failed to release advisory lock")
			}
			_ = conn.Close()
		})
	}
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}
