package retry

import (
	"sync"
	"time"
)

// Task is a cancellable single-shot retry timer with a fixed delay. There
// is no attempt cap: callers reschedule for as long as they live, and a
// stopped task refuses all further schedules so nothing fires after its
// owner was torn down.
//
// Schedule is idempotent: while a fire is pending, further calls are
// no-ops, so overlapping failure events never stack concurrent timers.
type Task struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewTask builds a task that runs fn once per Schedule, delay after the
// call. fn runs on the timer goroutine.
func NewTask(delay time.Duration, fn func()) *Task {
	return &Task{delay: delay, fn: fn}
}

// Schedule arms the timer unless one is already pending or the task was
// stopped. Returns true when a new fire was armed.
func (t *Task) Schedule() bool {
	return t.ScheduleAfter(t.delay)
}

// ScheduleAfter arms the timer with a one-off delay, with the same
// idempotence rules as Schedule.
func (t *Task) ScheduleAfter(delay time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.timer != nil {
		return false
	}
	t.timer = time.AfterFunc(delay, t.fire)
	return true
}

func (t *Task) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.fn()
}

// Cancel drops any pending fire. The task stays usable.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// Stop cancels any pending fire and refuses all future schedules.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.stopped = true
}

func (t *Task) cancelLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Pending reports whether a fire is currently armed.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
