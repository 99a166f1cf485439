package storage

import (
	"context"
	"errors"
	"sync"
)

// UnlockFunc releases a lock obtained from a Locker.
type UnlockFunc func() error

// Locker provides mutual exclusion per document name. Lock blocks until the
// lock is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, name string) (UnlockFunc, error)
}

// LocalLocker serializes writers inside one process. Each name gets its own
// single-slot semaphore, so waiting honors context cancellation.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker returns a locker scoped to the process lifetime.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

func (l *LocalLocker) Lock(ctx context.Context, name string) (UnlockFunc, error) {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}

// ChainLocker acquires each locker in order and releases them in reverse.
// Pairing a LocalLocker with a RedisLocker queues writers of one process
// locally before they contend for the shared lock.
type ChainLocker []Locker

func (c ChainLocker) Lock(ctx context.Context, name string) (UnlockFunc, error) {
	unlocks := make([]UnlockFunc, 0, len(c))
	release := func() error {
		var errs []error
		for i := len(unlocks) - 1; i >= 0; i-- {
			if err := unlocks[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, l := range c {
		unlock, err := l.Lock(ctx, name)
		if err != nil {
			_ = release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
