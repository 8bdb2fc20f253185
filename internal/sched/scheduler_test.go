package sched

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskFires(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	defer s.Stop()

	fired := make(chan struct{})
	task := s.After(10*time.Millisecond, func() { close(fired) })
	if task == nil {
		t.Fatalf("expected task handle")
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("task never fired")
	}

	if task.Cancel() {
		t.Fatalf("cancel after firing must report false")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	defer s.Stop()

	var fired atomic.Bool
	task := s.After(50*time.Millisecond, func() { fired.Store(true) })
	if !task.Cancel() {
		t.Fatalf("cancel before firing must report true")
	}
	if task.Cancel() {
		t.Fatalf("double cancel must report false")
	}

	time.Sleep(150 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("cancelled task fired anyway")
	}
}

func TestStopCancelsPendingAndRejectsNew(t *testing.T) {
	t.Parallel()

	s := NewScheduler()

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		s.After(50*time.Millisecond, func() { fired.Add(1) })
	}
	s.Stop()

	if task := s.After(time.Millisecond, func() { fired.Add(1) }); task != nil {
		t.Fatalf("stopped scheduler must reject new tasks")
	}

	time.Sleep(150 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("%d tasks fired after stop", n)
	}
}

func TestPanickingTaskIsContained(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	defer s.Stop()

	fired := make(chan struct{})
	s.After(time.Millisecond, func() { panic("boom") })
	s.After(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("later task starved by panicking one")
	}
}
