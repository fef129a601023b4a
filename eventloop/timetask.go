// File: eventloop/timetask.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventloop

import (
	"sync/atomic"
	"time"
)

// TimeTask is a one-shot or periodic callback run on the loop goroutine.
// Cancellation is lazy: a cancelled task is dropped the next time the
// queue is scanned.
type TimeTask struct {
	delay       time.Duration
	period      time.Duration
	executeTime time.Time
	cancelled   atomic.Bool
	fn          func()
	owner       *Session
}

// NewTimeTask creates a task due delay after it is scheduled. A period
// of zero or less makes it one-shot.
func NewTimeTask(delay, period time.Duration, fn func()) *TimeTask {
	return &TimeTask{delay: delay, period: period, fn: fn}
}

// Cancel marks the task cancelled. It is safe from any goroutine.
func (t *TimeTask) Cancel() { t.cancelled.Store(true) }

func (t *TimeTask) Cancelled() bool { return t.cancelled.Load() }

func (t *TimeTask) Period() time.Duration { return t.period }

// ExecuteTime returns the absolute due time. Loop goroutine only.
func (t *TimeTask) ExecuteTime() time.Time { return t.executeTime }

// SetExecuteTime moves the due time. Loop goroutine only.
func (t *TimeTask) SetExecuteTime(at time.Time) { t.executeTime = at }

// timeQueue is an unordered task list scanned once per cycle. Tasks
// added while the queue runs wait in a side list until the scan ends.
type timeQueue struct {
	tasks   []*TimeTask
	pending []*TimeTask
	running bool
}

func (q *timeQueue) add(t *TimeTask) {
	if q.running {
		q.pending = append(q.pending, t)
		return
	}
	q.tasks = append(q.tasks, t)
}

func (q *timeQueue) len() int { return len(q.tasks) + len(q.pending) }

// next returns the earliest due time among live tasks and reaps
// cancelled ones.
func (q *timeQueue) next() (time.Time, bool) {
	var (
		at    time.Time
		found bool
	)
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if t.Cancelled() {
			detach(t)
			continue
		}
		kept = append(kept, t)
		if !found || t.executeTime.Before(at) {
			at, found = t.executeTime, true
		}
	}
	clearTail(q.tasks, len(kept))
	q.tasks = kept
	return at, found
}

// run executes due tasks through exec and reschedules periodic ones
// relative to now. It returns the number of tasks executed.
func (q *timeQueue) run(now func() time.Time, exec func(*TimeTask)) int {
	q.running = true
	executed := 0
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if t.Cancelled() {
			detach(t)
			continue
		}
		if t.executeTime.After(now()) {
			kept = append(kept, t)
			continue
		}
		exec(t)
		executed++
		if t.period > 0 && !t.Cancelled() {
			t.executeTime = now().Add(t.period)
			kept = append(kept, t)
			continue
		}
		detach(t)
	}
	clearTail(q.tasks, len(kept))
	q.tasks = append(kept, q.pending...)
	clear(q.pending)
	q.pending = q.pending[:0]
	q.running = false
	return executed
}

// cancelAll drops every task.
func (q *timeQueue) cancelAll() {
	for _, t := range q.tasks {
		t.Cancel()
		detach(t)
	}
	for _, t := range q.pending {
		t.Cancel()
		detach(t)
	}
	q.tasks, q.pending = nil, nil
}

func detach(t *TimeTask) {
	if t.owner != nil {
		delete(t.owner.tasks, t)
		t.owner = nil
	}
}

func clearTail(s []*TimeTask, from int) {
	clear(s[from:])
}
