package pipeline

import (
	"sync"
	"sync/atomic"
)

// ShutdownSignal is a one-shot stop request shared by all stages.
// Triggering it more than once has no further effect; the first reason wins.
type ShutdownSignal struct {
	once   sync.Once
	done   chan struct{}
	set    atomic.Bool
	reason error
}

// NewShutdownSignal creates an untriggered signal
func NewShutdownSignal() *ShutdownSignal {
	return &ShutdownSignal{done: make(chan struct{})}
}

// Trigger requests shutdown and reports whether this call was the first
func (s *ShutdownSignal) Trigger(reason error) bool {
	first := false
	s.once.Do(func() {
		s.reason = reason
		s.set.Store(true)
		close(s.done)
		first = true
	})
	return first
}

// IsSet reports whether shutdown has been requested
func (s *ShutdownSignal) IsSet() bool {
	return s.set.Load()
}

// Done is closed once shutdown has been requested
func (s *ShutdownSignal) Done() <-chan struct{} {
	return s.done
}

// Reason returns the reason passed to the first Trigger, or nil if not yet set
func (s *ShutdownSignal) Reason() error {
	if !s.IsSet() {
		return nil
	}
	return s.reason
}
