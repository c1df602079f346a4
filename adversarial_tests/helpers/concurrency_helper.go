package helpers

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// GoroutineSnapshot captures the state of goroutines at a point in time
type GoroutineSnapshot struct {
	Count     int
	Timestamp time.Time
}

// TakeGoroutineSnapshot captures current goroutine count
func TakeGoroutineSnapshot() *GoroutineSnapshot {
	return &GoroutineSnapshot{
		Count:     runtime.NumGoroutine(),
		Timestamp: time.Now(),
	}
}

// WaitForGoroutineCleanup waits until the goroutine count drops to within
// tolerance of before. Idle keep-alive connections are the usual stragglers,
// so callers should close them first.
func WaitForGoroutineCleanup(before *GoroutineSnapshot, maxWait time.Duration, tolerance int) error {
	deadline := time.Now().Add(maxWait)
	for {
		current := runtime.NumGoroutine()
		if current-before.Count <= tolerance {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("goroutine leak detected: started with %d, ended with %d (tolerance %d)",
				before.Count, current, tolerance)
		}
		runtime.GC()
		time.Sleep(20 * time.Millisecond)
	}
}

// DeadlockDetector fails operations that do not finish in time
type DeadlockDetector struct {
	timeout time.Duration
}

// NewDeadlockDetector creates a new deadlock detector
func NewDeadlockDetector(timeout time.Duration) *DeadlockDetector {
	return &DeadlockDetector{timeout: timeout}
}

// ErrDeadlock is returned when an operation outlives the detector's timeout.
var ErrDeadlock = errors.New("operation timed out (possible deadlock)")

// Run executes the function with deadlock detection. The function keeps
// running in the background after a timeout.
func (dd *DeadlockDetector) Run(fn func() error) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- fn()
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(dd.timeout):
		return fmt.Errorf("%w after %v", ErrDeadlock, dd.timeout)
	}
}

// RunConcurrently starts n goroutines running fn with their index and
// returns every non-nil error once all have finished.
func RunConcurrently(n int, fn func(i int) error) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if err := fn(i); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("goroutine %d: %w", i, err))
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}
