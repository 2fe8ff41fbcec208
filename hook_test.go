package microsched

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestRunHook_call_cancelsContext(t *testing.T) {
	var hookCtx context.Context
	var got *Scheduler
	scheduler, _ := newTestScheduler(t)
	hook := RunHook(func(ctx context.Context, scheduler *Scheduler) error {
		hookCtx = ctx
		got = scheduler
		if err := ctx.Err(); err != nil {
			t.Error(err)
		}
		return nil
	})
	if err := hook.call(context.Background(), scheduler); err != nil {
		t.Fatal(err)
	}
	if got != scheduler {
		t.Error("unexpected scheduler")
	}
	if hookCtx.Err() != context.Canceled {
		t.Error(hookCtx.Err())
	}
}

func TestChannelTask_drainsAvailable(t *testing.T) {
	ch := make(chan int, 3)
	var received []int
	task := ChannelTask(ch, func(value int) { received = append(received, value) })

	// nothing available
	task()
	if received != nil {
		t.Fatal(received)
	}

	ch <- 1
	ch <- 2
	task()
	if expected := []int{1, 2}; !reflect.DeepEqual(received, expected) {
		t.Error(received)
	}
}

func TestChannelTask_boundedPerRun(t *testing.T) {
	ch := make(chan int, 2)
	var received []int
	task := ChannelTask(ch, func(value int) {
		received = append(received, value)
		// a producer which keeps up with the consumer
		select {
		case ch <- value + 10:
		default:
		}
	})

	ch <- 1
	ch <- 2
	task()
	if len(received) != 2 {
		t.Error(received)
	}
}

func TestChannelTask_unbuffered(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	ch := make(chan string)
	var received []string
	task := ChannelTask(ch, func(value string) { received = append(received, value) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch <- "a"
	}()

	deadline := time.Now().Add(time.Second * 5)
	for len(received) == 0 && time.Now().Before(deadline) {
		task()
		time.Sleep(time.Millisecond)
	}
	<-done

	if expected := []string{"a"}; !reflect.DeepEqual(received, expected) {
		t.Error(received)
	}
}

func TestChannelTask_closed(t *testing.T) {
	ch := make(chan int, 1)
	close(ch)
	task := ChannelTask(ch, func(value int) { t.Error("unexpected value", value) })
	task()
}

func TestChannelTask_panics(t *testing.T) {
	for name, fn := range map[string]func(){
		`microsched: channel task channel must not be nil`: func() { ChannelTask[int](nil, func(int) {}) },
		`microsched: channel task func must not be nil`:    func() { ChannelTask[int](make(chan int), nil) },
	} {
		func() {
			defer func() {
				if r := recover(); r != name {
					t.Error(r)
				}
			}()
			fn()
		}()
	}
}

func TestChannelTask_withScheduler(t *testing.T) {
	scheduler, clock := newTestScheduler(t)
	periods := make(chan time.Duration, 4)
	target := mustAdd(t, scheduler, noop, time.Millisecond*100, Scheduled)
	mustAdd(t, scheduler, ChannelTask(periods, func(period time.Duration) {
		if err := scheduler.Modify(target, period, Scheduled); err != nil {
			t.Error(err)
		}
	}), time.Millisecond*10, Scheduled)

	periods <- time.Millisecond * 30

	for i := 0; i < 20; i++ {
		clock.Tick()
		scheduler.Step()
	}

	info, err := scheduler.Info(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Period != time.Millisecond*30 || info.NextDue != 40 {
		t.Error(info)
	}
}
