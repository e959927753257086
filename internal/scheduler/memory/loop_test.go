package memory

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleShotLoop_RunsTask(t *testing.T) {
	done := make(chan struct{})
	loop := NewSingleShotLoop(func() { close(done) })
	defer loop.Stop()

	if !loop.Schedule(5 * time.Millisecond) {
		t.Fatal("Schedule returned false on a live loop")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Task was not executed")
	}
}

func TestSingleShotLoop_AtMostOnePending(t *testing.T) {
	var runs int32
	loop := NewSingleShotLoop(func() { atomic.AddInt32(&runs, 1) })
	defer loop.Stop()

	// Повторное планирование заменяет отложенный вызов, а не добавляет второй
	loop.Schedule(20 * time.Millisecond)
	loop.Schedule(20 * time.Millisecond)
	loop.Schedule(20 * time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Errorf("Expected exactly 1 run, got %d", got)
	}
}

func TestSingleShotLoop_Cancel(t *testing.T) {
	var runs int32
	loop := NewSingleShotLoop(func() { atomic.AddInt32(&runs, 1) })
	defer loop.Stop()

	loop.Schedule(20 * time.Millisecond)
	if !loop.Pending() {
		t.Error("Expected a pending call after Schedule")
	}

	loop.Cancel()
	if loop.Pending() {
		t.Error("Expected no pending call after Cancel")
	}

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 0 {
		t.Errorf("Expected no runs after Cancel, got %d", got)
	}
}

func TestSingleShotLoop_TaskCanReschedule(t *testing.T) {
	var runs int32
	var loop *SingleShotLoop
	loop = NewSingleShotLoop(func() {
		if atomic.AddInt32(&runs, 1) < 3 {
			loop.Schedule(time.Millisecond)
		}
	})
	defer loop.Stop()

	loop.Schedule(time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Errorf("Expected 3 chained runs, got %d", got)
	}
}

func TestSingleShotLoop_StoppedLoopRefusesSchedule(t *testing.T) {
	loop := NewSingleShotLoop(func() {})
	loop.Stop()

	if loop.Schedule(time.Millisecond) {
		t.Error("Expected Schedule to refuse after Stop")
	}
}
