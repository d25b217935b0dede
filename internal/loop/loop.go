// Package loop is the device's cooperative timer loop.
// Periodic and one-shot tasks are registered with a cancellation handle and
// run in registration order, one pass per tick, while the coordination lock
// is held. Callbacks may register or cancel tasks; new tasks first run on the
// next pass. Time is injectable so tests can drive passes directly.
package loop

import (
	"context"
	"sync"
	"time"
)

// Task is a handle to a registered callback.
type Task struct {
	loop     *Loop
	name     string
	interval time.Duration // zero for one-shot tasks
	next     time.Time
	fn       func(now time.Time)
	canceled bool
}

// Cancel stops the task. Safe to call more than once, from a callback, or on
// a nil Task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if t.canceled {
		return
	}
	t.canceled = true
	t.loop.remove(t)
}

// Active reports whether the task is still scheduled.
func (t *Task) Active() bool {
	if t == nil {
		return false
	}
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	return !t.canceled
}

// Loop owns the task list.
type Loop struct {
	now  func() time.Time
	lock sync.Locker

	mu    sync.Mutex // guards tasks and Task.canceled
	tasks []*Task
}

// New creates a Loop. lock is held for the duration of each pass; pass a
// no-op locker when callers coordinate externally.
func New(now func() time.Time, lock sync.Locker) *Loop {
	return &Loop{now: now, lock: lock}
}

// Every registers fn to run every interval, first after one interval.
// interval must be positive.
func (l *Loop) Every(name string, interval time.Duration, fn func(now time.Time)) *Task {
	return l.add(name, interval, interval, fn)
}

// After registers fn to run once after delay.
func (l *Loop) After(name string, delay time.Duration, fn func(now time.Time)) *Task {
	return l.add(name, 0, delay, fn)
}

func (l *Loop) add(name string, interval, delay time.Duration, fn func(now time.Time)) *Task {
	t := &Task{
		loop:     l,
		name:     name,
		interval: interval,
		next:     l.now().Add(delay),
		fn:       fn,
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, t)
	l.mu.Unlock()
	return t
}

// remove drops t from the list. Caller holds l.mu.
func (l *Loop) remove(t *Task) {
	for i, c := range l.tasks {
		if c == t {
			l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
			return
		}
	}
}

// Pending returns the names of scheduled tasks in registration order.
func (l *Loop) Pending() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.tasks))
	for i, t := range l.tasks {
		names[i] = t.name
	}
	return names
}

// RunDue runs every task due at now. A periodic task that has fallen behind
// runs once and is rescheduled one interval from now.
func (l *Loop) RunDue(now time.Time) {
	l.mu.Lock()
	var due []*Task
	for _, t := range l.tasks {
		if t.next.After(now) {
			continue
		}
		due = append(due, t)
		if t.interval > 0 {
			t.next = t.next.Add(t.interval)
			if !t.next.After(now) {
				t.next = now.Add(t.interval)
			}
		}
	}
	l.mu.Unlock()

	l.lock.Lock()
	defer l.lock.Unlock()
	for _, t := range due {
		l.mu.Lock()
		skip := t.canceled
		if !skip && t.interval == 0 {
			t.canceled = true
			l.remove(t)
		}
		l.mu.Unlock()
		if skip {
			continue
		}
		t.fn(now)
	}
}

// Run drives passes from tick until ctx is canceled.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			l.RunDue(l.now())
		}
	}
}

// NopLocker satisfies sync.Locker without locking.
type NopLocker struct{}

func (NopLocker) Lock()   {}
func (NopLocker) Unlock() {}
