package internal

import (
	"context"
	"sync"
)

// ConnectionManager serializes session bootstrap (token acquisition and
// instance discovery). Unlike sync.Once a failed attempt is not remembered:
// the next caller runs the bootstrap again, and once an attempt succeeds every
// later call returns immediately.
type ConnectionManager struct {
	sem chan struct{}

	mu      sync.Mutex
	done    bool
	lastErr error
}

// NewConnectionManager creates a new ConnectionManager instance ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{sem: make(chan struct{}, 1)}
}

// Initialize runs fn unless a previous call already succeeded. Concurrent
// callers wait for the attempt in flight; a caller whose context ends while
// waiting returns the context error without running fn.
func (cm *ConnectionManager) Initialize(ctx context.Context, fn func(context.Context) error) error {
	if cm.IsInitialized() {
		return nil
	}

	select {
	case cm.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-cm.sem }()

	if cm.IsInitialized() {
		return nil
	}

	err := fn(ctx)

	cm.mu.Lock()
	cm.lastErr = err
	cm.done = err == nil
	cm.mu.Unlock()
	return err
}

// Error returns the error from the most recent failed attempt, or nil once
// bootstrap has succeeded or before it has been attempted.
func (cm *ConnectionManager) Error() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.done {
		return nil
	}
	return cm.lastErr
}

// IsInitialized reports whether bootstrap has completed successfully.
func (cm *ConnectionManager) IsInitialized() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.done
}
