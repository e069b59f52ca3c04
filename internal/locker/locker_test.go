package locker

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/backoffice/internal/logger"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Lock(ctx, "2024-03-01")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				current := atomic.LoadInt32(&maxInside)
				if n <= current || atomic.CompareAndSwapInt32(&maxInside, current, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, k.held("2024-03-01"))
}

func TestKeyedDifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	releaseA, err := k.Lock(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := k.Lock(ctx, "b")
		if err == nil {
			releaseB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedHonorsContextCancellation(t *testing.T) {
	k := NewKeyed()

	release, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Zero(t, k.held("a"))
}

func TestRedisLockIntegration(t *testing.T) {
	addr := os.Getenv("BACKOFFICE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BACKOFFICE_TEST_REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, RedisOptions{
		Prefix: "backoffice:test:lock:",
		TTL:    5 * time.Second,
		Wait:   100 * time.Millisecond,
	}, logger.Nop())
	ctx := context.Background()

	release, err := r.Lock(ctx, "2024-03-01")
	require.NoError(t, err)

	_, err = r.Lock(ctx, "2024-03-01")
	assert.ErrorIs(t, err, ErrNotObtained)

	release()
	again, err := r.Lock(ctx, "2024-03-01")
	require.NoError(t, err)
	again()
}

func TestRedisLockOutlivesItsTTLWhileHeld(t *testing.T) {
	addr := os.Getenv("BACKOFFICE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BACKOFFICE_TEST_REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, RedisOptions{
		Prefix: "backoffice:test:refresh:",
		TTL:    200 * time.Millisecond,
		Wait:   50 * time.Millisecond,
	}, logger.Nop())
	ctx := context.Background()

	release, err := r.Lock(ctx, "2024-03-02")
	require.NoError(t, err)

	time.Sleep(600 * time.Millisecond)
	_, err = r.Lock(ctx, "2024-03-02")
	assert.ErrorIs(t, err, ErrNotObtained, "a held lock must not expire")

	release()
	again, err := r.Lock(ctx, "2024-03-02")
	require.NoError(t, err)
	again()
}
