package locker

import (
	"context"
	"errors"
	"sync"
)

var ErrNotObtained = errors.New("lock not obtained")

// Locker hands out mutual exclusion by key. The returned release function is safe to
// call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Keyed serializes holders of the same key inside one process.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	sl, ok := k.slots[key]
	if !ok {
		sl = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = sl
	}
	sl.refs++
	k.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, sl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-sl.ch
			k.drop(key, sl)
		})
	}, nil
}

func (k *Keyed) drop(key string, sl *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(k.slots, key)
	}
}

// held reports how many callers hold or wait on key.
func (k *Keyed) held(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if sl, ok := k.slots[key]; ok {
		return sl.refs
	}
	return 0
}
