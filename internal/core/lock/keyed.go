package lock

import (
	"context"
	"fmt"
	"sync"
)

// KeyedMutex is an in-process Locker with one mutex per key.
// Idle keys are dropped so the map only holds keys that are locked or awaited.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

var _ Locker = (*KeyedMutex)(nil)

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (m *KeyedMutex) Acquire(ctx context.Context, key string) (Handle, error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		return &keyedHandle{m: m, key: key, s: s}, nil
	case <-ctx.Done():
		m.unref(key, s)
		return nil, fmt.Errorf("%w: %w", ErrNotAcquired, ctx.Err())
	}
}

// Len reports how many keys are currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func (m *KeyedMutex) unref(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

type keyedHandle struct {
	m    *KeyedMutex
	key  string
	s    *slot
	once sync.Once
}

func (h *keyedHandle) Release(context.Context) error {
	released := false
	h.once.Do(func() {
		<-h.s.sem
		h.m.unref(h.key, h.s)
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}
