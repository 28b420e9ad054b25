// Package scheduler implements the single-deadline wake-up timer that drives
// autonomous follow-up turns. At most one deadline is outstanding at any
// time: arming replaces any prior deadline (last-write-wins) and clearing
// disarms unconditionally. When an armed deadline elapses the registered
// callback fires exactly once on the timer goroutine, then the scheduler
// returns to idle.
package scheduler

import (
	"sync"
	"time"

	"github.com/deskagent/deskagent/logging"
)

// Status is an eventually consistent snapshot of the scheduler state,
// readable without holding the orchestrator's exclusive lock.
type Status struct {
	Armed            bool       `json:"armed"`
	FireAt           *time.Time `json:"fire_at,omitempty"`
	RemainingSeconds float64    `json:"remaining_seconds,omitempty"`
}

// Options holds overrides passed to New().
type Options struct {
	Logger logging.Logger
}

// Scheduler owns at most one pending wake-up time.
type Scheduler struct {
	mu       sync.Mutex
	armed    bool
	fireAt   time.Time
	callback func()
	wake     chan struct{}
	stop     chan struct{}
	running  bool
	logger   logging.Logger
}

// New constructs an idle, unstarted Scheduler.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{logger: opts.Logger}
}

// Start binds the fire callback and begins the timer loop. Restart is
// idempotent: any previous loop is cancelled first so duplicate timers never
// coexist. The pending deadline, if any, is dropped; a restarted scheduler
// begins idle.
func (s *Scheduler) Start(callback func()) {
	s.mu.Lock()
	if s.running {
		close(s.stop)
	}
	s.callback = callback
	s.armed = false
	s.wake = make(chan struct{}, 1)
	s.stop = make(chan struct{})
	s.running = true
	wake, stop := s.wake, s.stop
	s.mu.Unlock()

	go s.loop(wake, stop)
}

// Stop terminates the timer loop and drops any pending deadline.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
	s.armed = false
}

// SetDeadline arms (or re-arms) the single wake-up time. Without a running
// loop there is nothing to service a deadline, so arming a stopped or
// never-started scheduler is a no-op.
func (s *Scheduler) SetDeadline(fireAt time.Time) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.fireAt = fireAt
	s.armed = true
	wake := s.wake
	s.mu.Unlock()
	s.logger.Debug("deadline armed", "fire_at", fireAt)
	notify(wake)
}

// ClearDeadline disarms; a no-op when already idle.
func (s *Scheduler) ClearDeadline() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.armed = false
	wake := s.wake
	s.mu.Unlock()
	notify(wake)
}

// Status returns the current arm state and remaining time.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return Status{}
	}
	fireAt := s.fireAt
	remaining := time.Until(fireAt).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return Status{Armed: true, FireAt: &fireAt, RemainingSeconds: remaining}
}

func notify(wake chan struct{}) {
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// loop sleeps until the armed deadline elapses, fires the callback once and
// returns to idle. Arm-state changes interrupt the sleep via wake.
func (s *Scheduler) loop(wake chan struct{}, stop chan struct{}) {
	for {
		s.mu.Lock()
		armed, fireAt := s.armed, s.fireAt
		s.mu.Unlock()

		var timerC <-chan time.Time
		var timer *time.Timer
		if armed {
			timer = time.NewTimer(time.Until(fireAt))
			timerC = timer.C
		}

		select {
		case <-stop:
			stopTimer(timer)
			return
		case <-wake:
			stopTimer(timer)
			continue
		case <-timerC:
			s.fire(fireAt)
		}
	}
}

// fire invokes the callback if the deadline that elapsed is still the armed
// one. A replaced or cleared deadline fizzles silently.
func (s *Scheduler) fire(elapsed time.Time) {
	s.mu.Lock()
	if !s.armed || !s.fireAt.Equal(elapsed) {
		s.mu.Unlock()
		return
	}
	s.armed = false
	callback := s.callback
	s.mu.Unlock()

	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("deadline callback panicked", "panic", r)
		}
	}()
	callback()
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
