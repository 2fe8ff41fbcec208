package microsched

import (
	"bytes"
	"fmt"
	"runtime"
	"runtime/pprof"
	"testing"
	"time"
)

// checkNumGoroutines is intended to be used to check for errant goroutines,
// like `defer checkNumGoroutines(time.Second * 3)(t)`.
func checkNumGoroutines(max time.Duration) func(t *testing.T) {
	before := runtime.NumGoroutine()
	return func(t *testing.T) {
		if t != nil {
			t.Helper()
		}
		after := waitNumGoroutines(max, func(n int) bool { return n <= before })
		if after > before {
			var b bytes.Buffer
			_ = pprof.Lookup("goroutine").WriteTo(&b, 1)
			testingErrorfOrPanic(t, "%s\n\nstarted with %d goroutines finished with %d", b.Bytes(), before, after)
		}
	}
}

// waitNumGoroutines will block until there are a target number of goroutines
// remaining, or a max duration is exceeded.
func waitNumGoroutines(maxDur time.Duration, fn func(n int) bool) (n int) {
	const minDur = time.Millisecond * 10
	if maxDur < minDur {
		maxDur = minDur
	}
	count := int(maxDur / minDur)
	maxDur /= time.Duration(count)
	n = runtime.NumGoroutine()
	for i := 0; i < count && !fn(n); i++ {
		time.Sleep(maxDur)
		runtime.GC()
		n = runtime.NumGoroutine()
	}
	return
}

func testingErrorfOrPanic(t *testing.T, format string, values ...interface{}) {
	if t == nil {
		panic(fmt.Errorf(format, values...))
	}
	t.Helper()
	t.Errorf(format, values...)
}

// newTestScheduler constructs a scheduler driven by a manual Counter, which
// the caller advances.
func newTestScheduler(t *testing.T, options ...Option) (*Scheduler, *Counter) {
	t.Helper()
	clock := new(Counter)
	scheduler, err := New(append([]Option{WithClock(clock)}, options...)...)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	return scheduler, clock
}

// mustAdd is Scheduler.Add, failing the test on error.
func mustAdd(t *testing.T, scheduler *Scheduler, task Task, period time.Duration, status Status) Handle {
	t.Helper()
	h, err := scheduler.Add(task, period, status)
	if err != nil {
		t.Fatalf("failed to add task: %v", err)
	}
	return h
}

// mustAddImmediate is Scheduler.AddImmediate, failing the test on error.
func mustAddImmediate(t *testing.T, scheduler *Scheduler, task Task, period time.Duration, status Status) Handle {
	t.Helper()
	h, err := scheduler.AddImmediate(task, period, status)
	if err != nil {
		t.Fatalf("failed to add task: %v", err)
	}
	return h
}
