package microsched

import (
	"context"
)

type (
	// Watchdog is called once per iteration of the dispatch loop, e.g. to
	// reset a hardware watchdog timer, or to notify a service manager. It
	// runs synchronously with the loop, and should be cheap.
	Watchdog func()

	// RunHook is a hook which is called on each Scheduler.Run, just prior to
	// starting the main loop. The context will be a descendent of the
	// Scheduler.Run context, and will be cancelled after the hook returns.
	// Like task bodies, it may use the Scheduler freely.
	RunHook func(ctx context.Context, scheduler *Scheduler) error
)

func (x RunHook) call(ctx context.Context, scheduler *Scheduler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return x(ctx, scheduler)
}

// ChannelTask returns a Task which, each time it runs, receives any values
// which are immediately available from ch, passing each to fn. This is the
// means by which other goroutines may hand work to the dispatch loop, e.g.
// to mutate the Scheduler, which is not otherwise safe.
//
// At most max(1, cap(ch)) values are handled per run, so a fast producer
// cannot monopolize the loop. A closed channel is ignored.
func ChannelTask[T any](ch <-chan T, fn func(value T)) Task {
	if ch == nil {
		panic(`microsched: channel task channel must not be nil`)
	}
	if fn == nil {
		panic(`microsched: channel task func must not be nil`)
	}
	limit := cap(ch)
	if limit < 1 {
		limit = 1
	}
	return func() {
		for i := 0; i < limit; i++ {
			select {
			case value, ok := <-ch:
				if !ok {
					return
				}
				fn(value)
			default:
				return
			}
		}
	}
}
