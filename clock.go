package microsched

import (
	"context"
	"sync/atomic"
	"time"
)

type (
	// Clock is a monotonically increasing millisecond counter, which wraps
	// at 2^32. The Scheduler only ever reads it.
	Clock interface {
		Now() uint32
	}

	// ClockFunc adapts an ordinary function to a Clock.
	ClockFunc func() uint32

	// Counter is a Clock that is advanced explicitly, e.g. by a timer
	// interrupt handler, the Run method, or a test. It is safe to advance a
	// Counter from one goroutine, while another reads it.
	//
	// The zero value is a valid Counter, reading zero.
	Counter struct {
		ms atomic.Uint32
	}
)

var (
	_ Clock = ClockFunc(nil)
	_ Clock = (*Counter)(nil)
)

func (x ClockFunc) Now() uint32 { return x() }

// Now returns the current count.
func (x *Counter) Now() uint32 { return x.ms.Load() }

// Tick advances the counter by one millisecond, returning the new value.
func (x *Counter) Tick() uint32 { return x.ms.Add(1) }

// Advance advances the counter by n milliseconds, returning the new value.
func (x *Counter) Advance(n uint32) uint32 { return x.ms.Add(n) }

// Set forcibly sets the counter, which is mostly useful to exercise
// rollover behavior.
func (x *Counter) Set(v uint32) { x.ms.Store(v) }

// Run is a tick source, backed by a time.Ticker, which advances the counter
// by the elapsed whole milliseconds on each tick, blocking until the context
// is cancelled. The interval is rounded up to at least one millisecond.
//
// Ticks that the runtime coalesces are not lost, since the elapsed time is
// measured, rather than counting ticker fires.
func (x *Counter) Run(ctx context.Context, interval time.Duration) error {
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	var carry time.Duration

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			carry += now.Sub(last)
			last = now
			if ms := carry / time.Millisecond; ms > 0 {
				carry -= ms * time.Millisecond
				x.ms.Add(uint32(ms))
			}
		}
	}
}

// due reports whether a deadline has been reached, treating the difference
// as signed, which tolerates exactly one wrap of the counter.
func due(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// elapsed is the number of milliseconds between two readings, across at
// most one wrap.
func elapsed(from, to uint32) uint32 {
	return to - from
}
