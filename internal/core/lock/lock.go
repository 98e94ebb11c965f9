// Package lock provides per-account exclusive locks.
//
// Callers that need more than one account lock must go through AcquireOrdered,
// which takes keys in ascending order and releases them in descending order.
// Two transfers that share one or two accounts therefore always contend on the
// lowest shared key first and cannot deadlock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNotAcquired is returned when a lock could not be obtained before the
	// backend gave up (tries exhausted or context done).
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned when releasing a lock that is no longer held.
	ErrNotHeld = errors.New("lock not held")
)

// Handle is an acquired lock.
type Handle interface {
	Release(ctx context.Context) error
}

// Locker grants exclusive locks keyed by account id.
// Acquire blocks until no other holder exists or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Handle, error)
}

// Set is a group of locks acquired in ascending key order.
type Set struct {
	keys    []string
	handles []Handle
}

// AcquireOrdered sorts and de-duplicates keys and acquires them in ascending
// order. If any acquisition fails the locks already taken are released before
// returning.
func AcquireOrdered(ctx context.Context, l Locker, keys ...string) (*Set, error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	set := &Set{keys: sorted, handles: make([]Handle, 0, len(sorted))}
	for _, key := range sorted {
		h, err := l.Acquire(ctx, key)
		if err != nil {
			releaseErr := set.Release(context.WithoutCancel(ctx))
			return nil, errors.Join(fmt.Errorf("acquire %q: %w", key, err), releaseErr)
		}
		set.handles = append(set.handles, h)
	}
	return set, nil
}

// Keys returns the locked keys in acquisition order.
func (s *Set) Keys() []string {
	return slices.Clone(s.keys)
}

// Release frees every held lock in reverse acquisition order. It is safe to
// call more than once.
func (s *Set) Release(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs []error
	for i := len(s.handles) - 1; i >= 0; i-- {
		if err := s.handles[i].Release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release %q: %w", s.keys[i], err))
		}
	}
	s.handles = nil
	return errors.Join(errs...)
}
