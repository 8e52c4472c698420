// Package retry computes reconnect delays and owns the single pending retry.
package retry

import (
	"sync"
	"time"
)

// BaseDelay is the delay unit multiplied by the attempt number.
const BaseDelay = 2000 * time.Millisecond

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through
// DefaultAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// DefaultAfterFunc wraps time.AfterFunc.
func DefaultAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler holds at most one pending reconnect.
type Scheduler struct {
	base      time.Duration
	afterFunc AfterFunc

	mu         sync.Mutex
	pending    Timer
	generation uint64
}

// NewScheduler returns a scheduler with BaseDelay. A nil afterFunc uses
// DefaultAfterFunc.
func NewScheduler(afterFunc AfterFunc) *Scheduler {
	if afterFunc == nil {
		afterFunc = DefaultAfterFunc
	}
	return &Scheduler{base: BaseDelay, afterFunc: afterFunc}
}

// Delay returns the wait before retrying after the attempt-th error (1-based).
func (s *Scheduler) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.base * time.Duration(attempt)
}

// ShouldRetry reports whether another attempt is allowed after attempt errors.
func ShouldRetry(attempt, maxAttempts int) bool {
	return attempt < maxAttempts
}

// Schedule arranges for fire to run after Delay(attempt) when attempt is below
// maxAttempts. It returns the delay and whether anything was scheduled.
// A retry that was cancelled, or superseded by a later Schedule, never fires.
func (s *Scheduler) Schedule(attempt, maxAttempts int, fire func()) (time.Duration, bool) {
	if !ShouldRetry(attempt, maxAttempts) {
		return 0, false
	}
	delay := s.Delay(attempt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Stop()
	}
	s.generation++
	gen := s.generation
	s.pending = s.afterFunc(delay, func() {
		s.mu.Lock()
		current := s.generation == gen
		if current {
			s.pending = nil
		}
		s.mu.Unlock()
		if current {
			fire()
		}
	})
	return delay, true
}

// Cancel drops the pending retry, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

// Pending reports whether a retry is waiting to fire.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
