package microsched

import (
	"fmt"
)

const (
	// DefaultCapacity is the number of task slots allocated by New, unless
	// WithCapacity is used.
	DefaultCapacity = 255

	// DefaultPeriod is the period, in milliseconds, substituted for periods
	// which are zero, or larger than the maximum period.
	DefaultPeriod = 50

	// DefaultMaxPeriod is the largest period accepted, in milliseconds (one
	// hour), unless WithMaxPeriod is used.
	DefaultMaxPeriod = 3_600_000

	// maxCapacity keeps slot indices well clear of the nil sentinel.
	maxCapacity = 1 << 16

	// nilSlot marks the absence of a slot, in links, head and cursor.
	nilSlot = ^uint32(0)
)

const (
	// Paused tasks are never run, but retain their period.
	Paused Status = iota
	// Scheduled tasks run every period, measured from when each run was
	// started.
	Scheduled
	// OneTime tasks run once, when due, then become Paused.
	OneTime

	// StatusError is returned by Scheduler.Status when the query itself is
	// invalid. It is never stored.
	StatusError Status = 0xFF
)

type (
	// Task is the body of a scheduled task. It runs synchronously within the
	// dispatch loop, and must return promptly, since nothing else (including
	// the watchdog hook) runs until it does.
	Task func()

	// Status is the run mode of a task.
	Status uint8

	// Handle identifies a registered task. The zero value is the empty
	// reference, and is never valid. A handle becomes stale once its task is
	// removed, or the Scheduler is reset, and is then rejected by every
	// operation, even if the slot it referred to has since been reused.
	Handle struct {
		index uint32
		gen   uint32
	}

	// slot is one element of the task arena. Live slots form a closed,
	// circular, doubly linked chain, in registration order.
	slot struct {
		task    Task
		period  uint32
		nextDue uint32
		status  Status
		next    uint32
		prev    uint32
		// gen is odd while the slot is live, and even while it is free, so
		// a Handle (always odd gen) never matches a free slot
		gen uint32
	}
)

// IsZero reports whether the handle is the empty reference.
func (x Handle) IsZero() bool { return x == (Handle{}) }

func (x Handle) String() string {
	if x.IsZero() {
		return `handle(empty)`
	}
	return fmt.Sprintf(`handle(%d#%d)`, x.index, x.gen)
}

// valid reports whether the status is one of the base modes.
func (x Status) valid() bool {
	return x <= OneTime
}

func (x Status) String() string {
	switch x {
	case Paused:
		return `paused`
	case Scheduled:
		return `scheduled`
	case OneTime:
		return `onetime`
	case StatusError:
		return `error`
	default:
		return fmt.Sprintf(`status(%d)`, uint8(x))
	}
}

// ParseStatus is the inverse of Status.String, for the base modes.
func ParseStatus(s string) (Status, error) {
	switch s {
	case `paused`:
		return Paused, nil
	case `scheduled`:
		return Scheduled, nil
	case `onetime`:
		return OneTime, nil
	default:
		return StatusError, fmt.Errorf(`microsched: unknown status %q`, s)
	}
}

func (x *slot) live() bool {
	return x.gen&1 == 1
}

// invoke runs the task body, returning the elapsed milliseconds.
func (x *slot) invoke(clock Clock) uint32 {
	start := clock.Now()
	x.task()
	return elapsed(start, clock.Now())
}
