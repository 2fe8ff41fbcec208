package microsched

import (
	"errors"
	"time"
)

var (
	// ErrNotInitialized is returned by registry operations on a scheduler
	// which has not been initialized, or has been torn down.
	ErrNotInitialized = errors.New(`microsched: scheduler not initialized`)

	// ErrFull indicates every task slot is in use.
	ErrFull = errors.New(`microsched: task capacity exhausted`)

	// ErrNilTask indicates an attempt to register a nil task body.
	ErrNilTask = errors.New(`microsched: task func must not be nil`)

	// ErrEmpty indicates an attempt to remove from an empty registry.
	ErrEmpty = errors.New(`microsched: no tasks registered`)

	// ErrInvalidHandle indicates an empty or stale handle, i.e. one which
	// does not identify a registered task.
	ErrInvalidHandle = errors.New(`microsched: invalid task handle`)

	// ErrInvalidStatus indicates a status which is not one of Paused,
	// Scheduled, or OneTime.
	ErrInvalidStatus = errors.New(`microsched: invalid task status`)
)

// Add registers a task, to be run every period, according to status, and
// returns its handle. The first run is due one period from now.
//
// A period which is not positive, or exceeds the max period (see
// WithMaxPeriod), is replaced with the default period (see
// WithDefaultPeriod), and sub-millisecond precision is discarded. A status
// which is not one of Paused, Scheduled, or OneTime is replaced with
// Scheduled.
//
// Add fails with ErrNotInitialized, ErrFull, or ErrNilTask. Tasks are run in
// the order they were added.
func (x *Scheduler) Add(task Task, period time.Duration, status Status) (Handle, error) {
	return x.add(task, period, status, false)
}

// AddImmediate is like Add, except the task is due immediately, i.e. it
// will run the next time the dispatch loop visits it, unless it is Paused.
func (x *Scheduler) AddImmediate(task Task, period time.Duration, status Status) (Handle, error) {
	return x.add(task, period, status, true)
}

func (x *Scheduler) add(task Task, period time.Duration, status Status, immediate bool) (Handle, error) {
	if !x.initialized {
		return Handle{}, ErrNotInitialized
	}
	if len(x.free) == 0 {
		return Handle{}, ErrFull
	}
	if task == nil {
		return Handle{}, ErrNilTask
	}

	if !status.valid() {
		status = Scheduled
	}

	i := x.free[len(x.free)-1]
	x.free = x.free[:len(x.free)-1]

	s := &x.slots[i]
	s.gen++
	s.task = task
	s.period = x.normalizePeriod(period)
	s.status = status
	s.nextDue = x.clock.Now()
	if !immediate {
		s.nextDue += s.period
	}

	x.link(i)
	x.count++

	return Handle{index: i, gen: s.gen}, nil
}

// Remove unregisters the task, after which its handle is stale. The task
// will not run again, unless it is currently running, in which case the
// current run is unaffected. It is safe to remove any task from within a
// task body, including the running task.
//
// Remove fails with ErrNotInitialized, ErrEmpty, or ErrInvalidHandle.
func (x *Scheduler) Remove(h Handle) error {
	if !x.initialized {
		return ErrNotInitialized
	}
	if x.count == 0 {
		return ErrEmpty
	}
	i, err := x.lookup(h)
	if err != nil {
		return err
	}

	x.unlink(i)
	x.release(i)
	x.count--

	return nil
}

// Modify replaces the period and status of a registered task. The next due
// time becomes one (validated) period from now, if the status is Scheduled
// or OneTime. The period is validated the same way as Add, but an invalid
// status is an error.
//
// Modify fails with ErrNotInitialized, ErrInvalidHandle, or
// ErrInvalidStatus.
func (x *Scheduler) Modify(h Handle, period time.Duration, status Status) error {
	s, err := x.mutable(h)
	if err != nil {
		return err
	}
	if !status.valid() {
		return ErrInvalidStatus
	}

	s.period = x.normalizePeriod(period)
	s.status = status

	switch status {
	case Scheduled, OneTime:
		s.nextDue = x.clock.Now() + s.period
	default:
		s.nextDue = 0
	}

	return nil
}

// Pause stops a task from running, retaining its period.
//
// Pause fails with ErrNotInitialized, or ErrInvalidHandle.
func (x *Scheduler) Pause(h Handle) error {
	s, err := x.mutable(h)
	if err != nil {
		return err
	}
	s.status = Paused
	return nil
}

// Resume sets the status of a task, typically one that was paused. If the
// status is Scheduled, the next due time becomes one (stored) period from
// now. Otherwise, the stored due time is kept, meaning a resumed OneTime
// task runs as soon as it is visited, if its due time has passed.
//
// Resume fails with ErrNotInitialized, ErrInvalidHandle, or
// ErrInvalidStatus.
func (x *Scheduler) Resume(h Handle, status Status) error {
	s, err := x.mutable(h)
	if err != nil {
		return err
	}
	if !status.valid() {
		return ErrInvalidStatus
	}

	s.status = status
	if status == Scheduled {
		s.nextDue = x.clock.Now() + s.period
	}

	return nil
}

// Status returns the status of a registered task, or StatusError, if the
// scheduler is not initialized, or the handle is empty or stale.
func (x *Scheduler) Status(h Handle) Status {
	s, err := x.mutable(h)
	if err != nil {
		return StatusError
	}
	return s.status
}

func (x *Scheduler) mutable(h Handle) (*slot, error) {
	if !x.initialized {
		return nil, ErrNotInitialized
	}
	i, err := x.lookup(h)
	if err != nil {
		return nil, err
	}
	return &x.slots[i], nil
}

func (x *Scheduler) lookup(h Handle) (uint32, error) {
	if h.IsZero() || int(h.index) >= len(x.slots) {
		return 0, ErrInvalidHandle
	}
	if s := &x.slots[h.index]; !s.live() || s.gen != h.gen {
		return 0, ErrInvalidHandle
	}
	return h.index, nil
}

func (x *Scheduler) normalizePeriod(d time.Duration) uint32 {
	if ms, ok := toMillis(d); ok && ms != 0 && ms <= x.maxPeriod {
		return ms
	}
	return x.defaultPeriod
}

// link appends slot i to the tail of the chain, which is the node prior to
// head.
func (x *Scheduler) link(i uint32) {
	s := &x.slots[i]

	if x.head == nilSlot {
		s.next, s.prev = i, i
		x.head = i
		x.cursor = i
		return
	}

	tail := x.slots[x.head].prev
	s.prev = tail
	s.next = x.head
	x.slots[tail].next = i
	x.slots[x.head].prev = i
}

// unlink removes slot i from the chain, moving head and cursor off it.
func (x *Scheduler) unlink(i uint32) {
	s := &x.slots[i]

	next := s.next
	if next == i {
		// sole member
		next = nilSlot
	} else {
		x.slots[s.prev].next = s.next
		x.slots[s.next].prev = s.prev
	}

	if x.head == i {
		x.head = next
	}

	if x.cursor == i {
		x.cursor = next
		if x.stepping {
			x.cursorMoved = true
		}
	}
}

func (x *Scheduler) release(i uint32) {
	s := &x.slots[i]
	*s = slot{gen: s.gen + 1, next: nilSlot, prev: nilSlot}
	x.free = append(x.free, i)
}
