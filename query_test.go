package microsched

import (
	"reflect"
	"testing"
	"time"
)

func TestScheduler_Info(t *testing.T) {
	scheduler, clock := newTestScheduler(t)
	clock.Set(7)
	h := mustAdd(t, scheduler, noop, time.Millisecond*12, OneTime)

	info, err := scheduler.Info(h)
	if err != nil {
		t.Fatal(err)
	}
	if expected := (TaskInfo{Handle: h, Period: time.Millisecond * 12, NextDue: 19, Status: OneTime}); info != expected {
		t.Errorf("%+v != %+v", info, expected)
	}

	if _, err := scheduler.Info(Handle{}); err != ErrInvalidHandle {
		t.Error(err)
	}
}

func TestScheduler_Handles(t *testing.T) {
	scheduler, _ := newTestScheduler(t)
	if v := scheduler.Handles(); v != nil {
		t.Error(v)
	}

	a := mustAdd(t, scheduler, noop, time.Millisecond, Scheduled)
	b := mustAdd(t, scheduler, noop, time.Millisecond, Scheduled)
	c := mustAdd(t, scheduler, noop, time.Millisecond, Scheduled)
	if v := scheduler.Handles(); !reflect.DeepEqual(v, []Handle{a, b, c}) {
		t.Error(v)
	}

	if err := scheduler.Remove(b); err != nil {
		t.Fatal(err)
	}
	d := mustAdd(t, scheduler, noop, time.Millisecond, Scheduled)
	if d.index != b.index {
		t.Error("expected slot reuse", b, d)
	}
	// registration order, not slot order
	if v := scheduler.Handles(); !reflect.DeepEqual(v, []Handle{a, c, d}) {
		t.Error(v)
	}
}

func TestScheduler_Cursor(t *testing.T) {
	scheduler, _ := newTestScheduler(t)
	if v := scheduler.Cursor(); !v.IsZero() {
		t.Error(v)
	}

	a := mustAdd(t, scheduler, noop, time.Second, Scheduled)
	b := mustAdd(t, scheduler, noop, time.Second, Paused)

	for i, expected := range [...]Handle{a, b, a, b} {
		if v := scheduler.Cursor(); v != expected {
			t.Errorf("step %d: %v != %v", i, v, expected)
		}
		scheduler.Step()
	}
}

func TestScheduler_Stats(t *testing.T) {
	scheduler, clock := newTestScheduler(t, WithCapacity(4))
	mustAdd(t, scheduler, noop, time.Millisecond*2, Scheduled)

	for i := 0; i < 10; i++ {
		clock.Tick()
		scheduler.Step()
	}

	if expected := (Stats{Tasks: 1, Capacity: 4, Steps: 10, Fires: 5}); scheduler.Stats() != expected {
		t.Errorf("%+v != %+v", scheduler.Stats(), expected)
	}
}

func TestScheduler_Now(t *testing.T) {
	scheduler, clock := newTestScheduler(t)
	clock.Set(1234)
	if v := scheduler.Now(); v != 1234 {
		t.Error(v)
	}
}
