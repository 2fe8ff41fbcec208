package microsched

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type (
	// Scheduler is a cooperative, round-robin task scheduler, holding a
	// fixed-capacity registry of tasks, and implementing the dispatch loop
	// which runs them.
	//
	// Scheduler must be constructed with New. The Run method drives the
	// dispatch loop, and the Step method performs a single iteration of it.
	//
	// Scheduler is not safe for concurrent use. Every method must be called
	// from the goroutine driving the loop (including from within task
	// bodies), or while the loop is not being driven.
	//
	// See also the package docs for [microsched].
	Scheduler struct {
		// clock is the time source, only ever read
		clock Clock

		// watchdog is called once per Step, and may be nil
		watchdog Watchdog

		// idle is called by Run when a revolution of the chain fired
		// nothing, and by Delay between polls
		idle func()

		// sleep, if set, is used by Delay instead of spinning on the clock
		sleep func(ctx context.Context, d time.Duration) error

		logger zerolog.Logger

		// overrunLog throttles overrun warnings
		overrunLog *rate.Limiter

		// runHooks are called on each Scheduler.Run, just prior to starting the main loop.
		runHooks []RunHook

		// slots is the task arena, allocated once, by New
		slots []slot

		// free is a stack of free slot indices, with capacity len(slots)
		free []uint32

		// head is the earliest registered live slot, or nilSlot
		head uint32

		// cursor is the slot the next Step will examine, or nilSlot
		cursor uint32

		// count is the number of live slots
		count int

		defaultPeriod uint32
		maxPeriod     uint32

		initialized bool

		// stepping is set while a task body is being invoked, by Step
		stepping bool

		// cursorMoved is set if, while stepping, the cursor was relocated
		// (its slot removed, or the registry reset), and must not advance
		cursorMoved bool

		steps    uint64
		fires    uint64
		overruns uint64

		// running is used to trigger a panic if Run is called concurrently
		running atomic.Int32
	}
)

// Init (re)initializes the scheduler, discarding any registered tasks. It is
// called by New, and is only necessary after Teardown.
func (x *Scheduler) Init() {
	if x.clock == nil {
		panic(`microsched: scheduler must be initialized with New`)
	}
	x.clear()
	if x.overrunLog == nil {
		x.overrunLog = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	x.initialized = true
	x.logger.Debug().
		Int(`capacity`, len(x.slots)).
		Uint32(`default_period_ms`, x.defaultPeriod).
		Uint32(`max_period_ms`, x.maxPeriod).
		Msg(`microsched: initialized`)
}

// Reset removes every registered task, invalidating all outstanding
// handles. The scheduler remains initialized. It is safe to call from within
// a task body.
func (x *Scheduler) Reset() {
	x.clear()
	x.logger.Debug().Msg(`microsched: reset`)
}

// Teardown removes every registered task, and marks the scheduler as
// uninitialized, after which every operation fails until Init is called.
func (x *Scheduler) Teardown() {
	x.clear()
	x.initialized = false
	x.logger.Debug().Msg(`microsched: torn down`)
}

// clear frees every slot, bumping the generation of each live slot, so
// that nothing which referenced them remains reachable.
func (x *Scheduler) clear() {
	x.free = x.free[:0]
	for i := len(x.slots) - 1; i >= 0; i-- {
		s := &x.slots[i]
		if s.live() {
			s.gen++
		}
		*s = slot{gen: s.gen, next: nilSlot, prev: nilSlot}
		x.free = append(x.free, uint32(i))
	}
	x.head = nilSlot
	x.cursor = nilSlot
	x.count = 0
	if x.stepping {
		x.cursorMoved = true
	}
}

// Run runs the dispatch loop, blocking until the context is cancelled, or a
// RunHook returns an error. A panic will occur if called concurrently
// (called again before the previous call returns), or if called on a
// scheduler which was not initialized with New.
//
// Each iteration is a call to Step. Whenever a full revolution of the task
// chain (or an iteration with no tasks) fires nothing, the idle func is
// called, see WithIdle.
//
// The context is not passed to tasks, which must not block. Cancellation is
// observed between iterations only.
func (x *Scheduler) Run(ctx context.Context) error {
	if x.clock == nil {
		panic(`microsched: scheduler must be initialized with New`)
	}

	// prevent more than one run call at a time (the registry is not synchronized)
	if !x.running.CompareAndSwap(0, 1) {
		panic(`microsched: scheduler already running`)
	}
	defer x.running.Store(0)

	for _, hook := range x.runHooks {
		if err := hook.call(ctx, x); err != nil {
			return err
		}
	}

	x.logger.Debug().Int(`tasks`, x.count).Msg(`microsched: dispatch loop started`)
	defer func() {
		x.logger.Debug().
			Uint64(`steps`, x.steps).
			Uint64(`fires`, x.fires).
			Uint64(`overruns`, x.overruns).
			Msg(`microsched: dispatch loop stopped`)
	}()

	done := ctx.Done()
	var idle int

	for {
		select {
		case <-done:
			return ctx.Err()
		default:
		}

		if x.Step() {
			idle = 0
			continue
		}

		if idle++; idle >= x.count {
			idle = 0
			x.idle()
		}
	}
}

// Step performs exactly one iteration of the dispatch loop: if there is a
// task under the cursor, and it is due, it is run. The cursor then advances
// to the next task in the chain, whether or not anything ran, and the
// watchdog is signalled. It returns true if a task body was invoked.
//
// A Scheduled task has its next due time computed before its body is
// invoked, as the current time plus its period, so a body which overruns its
// period is run again on its next visit, but never more than once per visit.
// A OneTime task is paused after its body returns.
func (x *Scheduler) Step() (fired bool) {
	x.steps++

	if x.initialized && x.count != 0 && x.cursor != nilSlot {
		fired = x.visit()
	}

	if x.watchdog != nil {
		x.watchdog()
	}

	return fired
}

func (x *Scheduler) visit() (fired bool) {
	i := x.cursor
	s := &x.slots[i]

	if s.status != Paused {
		if now := x.clock.Now(); due(now, s.nextDue) {
			fired = true
			x.fires++
			x.stepping = true
			func() {
				defer func() { x.stepping = false }()
				gen := s.gen
				if s.status == OneTime {
					s.invoke(x.clock)
					// the body may have removed, or replaced, itself
					if s.gen == gen {
						s.status = Paused
					}
					return
				}
				s.nextDue = now + s.period
				if took := s.invoke(x.clock); s.gen == gen && took > s.period {
					x.overrun(Handle{index: i, gen: gen}, took, s.period)
				}
			}()
		}
	}

	if x.cursorMoved {
		x.cursorMoved = false
	} else if x.cursor != nilSlot {
		x.cursor = x.slots[x.cursor].next
	}

	return fired
}

func (x *Scheduler) overrun(h Handle, took, period uint32) {
	x.overruns++
	if x.overrunLog.Allow() {
		x.logger.Warn().
			Stringer(`task`, h).
			Uint32(`took_ms`, took).
			Uint32(`period_ms`, period).
			Uint64(`overruns`, x.overruns).
			Msg(`microsched: task overran its period`)
	}
}

// Delay blocks until the clock has advanced by d (rounded down to whole
// milliseconds), or the context is cancelled. If a sleep func was
// configured (WithSleep), it is used instead of polling the clock.
//
// Delay is independent of the dispatch loop. Calling it from within a task
// body stalls every other task, and the watchdog, for its duration.
func (x *Scheduler) Delay(ctx context.Context, d time.Duration) error {
	if x.clock == nil {
		panic(`microsched: scheduler must be initialized with New`)
	}

	if x.sleep != nil {
		return x.sleep(ctx, d)
	}

	ms, ok := toMillis(d)
	if !ok || ms > 1<<31-1 {
		return fmt.Errorf(`microsched: delay out of range: %s`, d)
	}

	done := ctx.Done()
	deadline := x.clock.Now() + ms

	for !due(x.clock.Now(), deadline) {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		x.idle()
	}

	return nil
}

// Sleep blocks for the given duration, or until the context is cancelled,
// returning the context error in the latter case. It is suitable for use
// with WithSleep, on hosts with a real clock.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)

	select {
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
