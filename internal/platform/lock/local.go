package lock

import (
	"context"
	"sync"
)

// Local is an in-process lock for single-instance deployments and the
// embedded store.
type Local struct {
	mu   sync.Mutex
	held bool
}

func NewLocal() *Local { return &Local{} }

func (l *Local) TryLock(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *Local) Unlock(context.Context) error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	return nil
}
