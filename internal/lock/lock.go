// Package lock serialises updates of a single document.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"metarepo/internal/model"
)

// Locker grants exclusive access to a key. The returned release function
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process keyed mutex. Waiting longer than wait returns
// ErrConflict so callers can retry.
type Local struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal returns a Local that gives up after wait.
func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, slots: map[string]*slot{}}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquireSlot(key)

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(key)
		return nil, fmt.Errorf("%w: document %s is being updated", model.ErrConflict, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.releaseSlot(key)
		})
	}, nil
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseSlot(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
