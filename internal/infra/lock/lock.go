// Package lock keeps scheduled jobs from running on two replicas at once.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker hands out short-lived named locks. ok is false when another holder owns key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

var (
	_ Locker = (*Local)(nil)
	_ Locker = (*Redis)(nil)
)

// Local is an in-process Locker for single-replica deployments.
type Local struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), nowFn: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// A lock that expired and was taken again belongs to the new holder.
			if l.held[key].Equal(until) {
				delete(l.held, key)
			}
		})
	}
	return release, true, nil
}
