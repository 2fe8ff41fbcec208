package microsched

import (
	"time"
)

type (
	// TaskInfo is a snapshot of a registered task.
	TaskInfo struct {
		Handle Handle
		Period time.Duration
		// NextDue is the clock reading at which the task is next due, which
		// is only meaningful while the task is Scheduled or OneTime.
		NextDue uint32
		Status  Status
	}

	// Stats are running totals, since the scheduler was created.
	Stats struct {
		Tasks    int
		Capacity int
		Steps    uint64
		Fires    uint64
		Overruns uint64
	}
)

// Initialized reports whether registry operations are currently accepted.
func (x *Scheduler) Initialized() bool {
	return x.initialized
}

// Len returns the number of registered tasks.
func (x *Scheduler) Len() int {
	return x.count
}

// Cap returns the maximum number of registered tasks.
func (x *Scheduler) Cap() int {
	return len(x.slots)
}

// Now reads the configured clock.
func (x *Scheduler) Now() uint32 {
	return x.clock.Now()
}

// Info returns a snapshot of the given task.
func (x *Scheduler) Info(h Handle) (TaskInfo, error) {
	s, err := x.mutable(h)
	if err != nil {
		return TaskInfo{}, err
	}
	return TaskInfo{
		Handle:  h,
		Period:  time.Duration(s.period) * time.Millisecond,
		NextDue: s.nextDue,
		Status:  s.status,
	}, nil
}

// Handles returns every registered task, in the order they will be visited,
// starting from the earliest registered. Unlike most methods, it allocates.
func (x *Scheduler) Handles() []Handle {
	if !x.initialized || x.count == 0 {
		return nil
	}
	handles := make([]Handle, 0, x.count)
	i := x.head
	for {
		handles = append(handles, Handle{index: i, gen: x.slots[i].gen})
		if i = x.slots[i].next; i == x.head {
			break
		}
	}
	return handles
}

// Cursor returns the task the next Step will examine, or the zero Handle if
// there are none.
func (x *Scheduler) Cursor() Handle {
	if !x.initialized || x.cursor == nilSlot {
		return Handle{}
	}
	return Handle{index: x.cursor, gen: x.slots[x.cursor].gen}
}

// Stats returns the running totals of the dispatch loop.
func (x *Scheduler) Stats() Stats {
	return Stats{
		Tasks:    x.count,
		Capacity: len(x.slots),
		Steps:    x.steps,
		Fires:    x.fires,
		Overruns: x.overruns,
	}
}
