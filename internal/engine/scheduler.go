package engine

import (
	"sync"
	"time"
)

const (
	// DefaultDebounceInterval is how long the scheduler waits after the
	// most recent queuing event before running a sync. Every new change
	// resets the timer (debounce, not throttle).
	DefaultDebounceInterval = 4 * time.Second

	// DefaultPriorityInterval is the shorter debounce window used when a
	// delete is queued.
	DefaultPriorityInterval = 1 * time.Second
)

// scheduler debounces pending changes into a batched sync run. When the
// timer fires while a sync is already in flight it re-arms itself with the
// same delay, effectively polling until the in-flight sync completes.
type scheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration

	debounce time.Duration
	priority time.Duration

	enabled func() bool
	busy    func() bool
	run     func()
}

func newScheduler(debounce, priority time.Duration, enabled, busy func() bool, run func()) *scheduler {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	if priority <= 0 {
		priority = DefaultPriorityInterval
	}
	if priority > debounce {
		priority = debounce
	}
	return &scheduler{
		debounce: debounce,
		priority: priority,
		enabled:  enabled,
		busy:     busy,
		run:      run,
	}
}

// Schedule cancels any pending timer and reschedules. prioritized selects
// the shorter delete window. No-op while sync is disabled.
func (s *scheduler) Schedule(prioritized bool) {
	if !s.enabled() {
		return
	}
	delay := s.debounce
	if prioritized {
		delay = s.priority
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = delay
	s.resetLocked(delay)
}

func (s *scheduler) resetLocked(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *scheduler) fire() {
	if !s.enabled() {
		return
	}
	if s.busy() {
		// A sync is in flight; check again after the same delay.
		s.mu.Lock()
		s.resetLocked(s.delay)
		s.mu.Unlock()
		return
	}
	s.run()
}

// Stop cancels any pending timer.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
