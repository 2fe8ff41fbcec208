// Package microsched is a cooperative, non-preemptive task scheduler, in the
// style of the small "super loop" kernels found on microcontrollers.
//
// A Task is a plain func(), registered with a millisecond period and a run
// mode (see Status). Registered tasks form a fixed-capacity, circular,
// registration-ordered chain, which the dispatch loop walks one node per
// iteration. When the node under the cursor is due, its body is invoked
// synchronously, to completion, before the cursor moves on. There is no
// priority and no preemption: a long-running body delays every other task.
//
// Time is read from a Clock, a wrapping uint32 millisecond counter, which is
// advanced by something external (a hardware timer interrupt, a goroutine
// driving Counter.Run, or a test). Due checks use signed difference
// arithmetic, and so tolerate a single rollover of the counter, provided the
// loop polls each task at least once every 2^31 milliseconds.
//
// All task storage is allocated by New. Registering a task yields a Handle,
// which stays valid until the task is removed, or the Scheduler is reset.
//
// Scheduler.Run drives the loop until its context is cancelled. Scheduler.Step
// performs exactly one iteration, which is what tests, simulations, and
// hosts with their own outer loop use.
package microsched
