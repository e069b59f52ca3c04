package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores JSON-serializable values by key.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (*T, bool, error)
	Set(ctx context.Context, key string, value *T, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Noop[T any] struct{}

func (Noop[T]) Get(_ context.Context, _ string) (*T, bool, error) {
	return nil, false, nil
}

func (Noop[T]) Set(_ context.Context, _ string, _ *T, _ time.Duration) error {
	return nil
}

func (Noop[T]) Delete(_ context.Context, _ ...string) error {
	return nil
}

// Memory is a process-local cache used when Redis is not configured.
type Memory[T any] struct {
	mu      sync.Mutex
	entries map[string]memoryEntry[T]
	now     func() time.Time
}

type memoryEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{entries: make(map[string]memoryEntry[T]), now: time.Now}
}

func (m *Memory[T]) Get(_ context.Context, key string) (*T, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	value := entry.value
	return &value, true, nil
}

func (m *Memory[T]) Set(_ context.Context, key string, value *T, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry[T]{value: *value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory[T]) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}
