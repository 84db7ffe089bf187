package scheduler

import "sync/atomic"

// StopEvent is the scheduler's sticky, one-way stop signal:
// once set, it never clears, and every worker observing it exits. It
// implements worker.StopSignal.
type StopEvent struct {
	stopped atomic.Bool
}

// Set trips the stop signal. Idempotent.
func (s *StopEvent) Set() {
	s.stopped.Store(true)
}

// Stopped reports whether the stop signal has been tripped.
func (s *StopEvent) Stopped() bool {
	return s.stopped.Load()
}
