// Package sched provides a cancellable debounced task: repeated Schedule
// calls within the delay window coalesce into a single run of the most
// recently supplied function.
package sched

import (
	"sync"
	"time"
)

type Task struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending bool
}

func New(delay time.Duration) *Task {
	return &Task{delay: delay}
}

// Schedule arms the task to run fn after the configured delay. A pending
// run is replaced, not queued.
func (t *Task) Schedule(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.pending = true
	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		t.pending = false
		t.mu.Unlock()
		fn()
	})
}

// Cancel stops a pending run. Reports whether a run was actually pending.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil || !t.pending {
		return false
	}
	stopped := t.timer.Stop()
	t.pending = false
	return stopped
}

func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
