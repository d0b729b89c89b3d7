// Package limit provides the concurrency guards for expensive external
// calls: counting semaphores and per-service circuit breakers.
package limit

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore with a FIFO waiter queue, so a caller
// that has waited longest acquires first.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	waiters []chan struct{}
}

// NewSemaphore creates a semaphore with n permits.
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{permits: n}
}

// Acquire takes a permit, blocking in FIFO order until one is free or the
// context ends.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 && len(s.waiters) == 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-ready:
			// Permit arrived while cancelling; hand it on.
			s.mu.Unlock()
			s.Release()
			return ctx.Err()
		default:
		}
		for i, w := range s.waiters {
			if w == ready {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Release returns a permit, waking the oldest waiter if any.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) > 0 {
		ready := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(ready)
		return
	}
	s.permits++
}

// WithPermit runs fn while holding a permit.
func (s *Semaphore) WithPermit(ctx context.Context, fn func() error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()
	return fn()
}

// Available returns the number of free permits. Informational only.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}
