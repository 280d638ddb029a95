package service

import (
	"context"
	"sync"
)

// Slot serializes generations of one conversation. Acquiring it cancels the
// previous holder and waits for it to release before returning.
type Slot struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Acquire returns a context for the new generation and the func that releases it.
// If parent ends while waiting, the returned context is already done.
func (s *Slot) Acquire(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	s.mu.Lock()
	prevCancel, prevDone := s.cancel, s.done
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		select {
		case <-prevDone:
		case <-ctx.Done():
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			close(done)
		})
	}
	return ctx, release
}

// Cancel stops the current holder, if any, without waiting.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
