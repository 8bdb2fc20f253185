// Package sched runs delayed one-shot tasks that can be cancelled before
// they fire. Handlers use it for timed cleanups (voting conclusion, warning
// removal, confirmation expiry) instead of detached sleeping goroutines, so
// a task whose target disappears early can be withdrawn.
package sched

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Task is a handle to a scheduled function. Cancelling an already fired or
// already cancelled task is a no-op.
type Task struct {
	timer *time.Timer
	s     *Scheduler
	id    uint64

	once sync.Once
}

// Cancel withdraws the task. It reports whether the cancellation happened
// before the task fired.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	stopped := false
	t.once.Do(func() {
		stopped = t.timer.Stop()
		t.s.forget(t.id)
	})
	return stopped
}

// Scheduler owns the pending tasks. Stop cancels everything still pending;
// tasks that already fired are unaffected.
type Scheduler struct {
	mu      sync.Mutex
	pending map[uint64]*Task
	nextID  uint64
	stopped bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		pending: map[uint64]*Task{},
	}
}

// After schedules fn to run once after d. The function runs on its own
// goroutine with panic recovery; a panicking task does not take the process
// down. Returns nil if the scheduler is already stopped.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.nextID++
	task := &Task{s: s, id: s.nextID}
	task.timer = time.AfterFunc(d, func() {
		s.forget(task.id)
		defer func() {
			if r := recover(); r != nil {
				log.WithField("object", "Scheduler").Errorf("scheduled task panics: %v", r)
			}
		}()
		fn()
	})
	s.pending[task.id] = task
	return task
}

// Stop cancels all pending tasks and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tasks := make([]*Task, 0, len(s.pending))
	for _, t := range s.pending {
		tasks = append(tasks, t)
	}
	s.pending = map[uint64]*Task{}
	s.mu.Unlock()

	for _, t := range tasks {
		t.timer.Stop()
	}
}

func (s *Scheduler) forget(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}
