package microsched

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

type (
	Option interface {
		applyOption(c *schedulerConfig) error
	}

	optionFunc func(c *schedulerConfig) error

	schedulerConfig struct {
		clock         Clock                                            // see Scheduler.clock
		watchdog      Watchdog                                         // see Scheduler.watchdog
		idle          func()                                           // see Scheduler.idle
		sleep         func(ctx context.Context, d time.Duration) error // see Scheduler.sleep
		logger        zerolog.Logger                                   // see Scheduler.logger
		runHooks      []RunHook                                        // see Scheduler.runHooks
		capacity      int                                              // len(Scheduler.slots)
		defaultPeriod uint32                                           // see Scheduler.defaultPeriod
		maxPeriod     uint32                                           // see Scheduler.maxPeriod
	}
)

var (
	_ Option = optionFunc(nil)
)

// New initialises a [Scheduler], with the given options, allocating storage
// for every task it may hold. The returned Scheduler is initialized, and
// ready for tasks to be added. See also `With*` prefixed functions.
//
// A Clock is required, see WithClock.
func New(options ...Option) (*Scheduler, error) {
	c := schedulerConfig{
		idle:          runtime.Gosched,
		logger:        zerolog.Nop(),
		capacity:      DefaultCapacity,
		defaultPeriod: DefaultPeriod,
		maxPeriod:     DefaultMaxPeriod,
	}

	for _, option := range options {
		if err := option.applyOption(&c); err != nil {
			return nil, err
		}
	}

	if c.clock == nil {
		return nil, errors.New(`microsched: no clock configured`)
	}

	if c.defaultPeriod > c.maxPeriod {
		return nil, fmt.Errorf(`microsched: default period %dms exceeds max period %dms`, c.defaultPeriod, c.maxPeriod)
	}

	x := Scheduler{
		clock:         c.clock,
		watchdog:      c.watchdog,
		idle:          c.idle,
		sleep:         c.sleep,
		logger:        c.logger,
		runHooks:      c.runHooks,
		slots:         make([]slot, c.capacity),
		free:          make([]uint32, 0, c.capacity),
		defaultPeriod: c.defaultPeriod,
		maxPeriod:     c.maxPeriod,
	}

	x.Init()

	return &x, nil
}

// WithClock configures the millisecond time source. This option is
// required.
func WithClock(clock Clock) Option {
	return optionFunc(func(c *schedulerConfig) error {
		if clock == nil {
			return errors.New(`microsched: clock must not be nil`)
		}
		c.clock = clock
		return nil
	})
}

// WithWatchdog configures a [Watchdog], which will be called once per
// iteration of the dispatch loop.
func WithWatchdog(watchdog Watchdog) Option {
	return optionFunc(func(c *schedulerConfig) error {
		if watchdog == nil {
			return errors.New(`microsched: watchdog must not be nil`)
		}
		c.watchdog = watchdog
		return nil
	})
}

// WithCapacity sets the maximum number of registered tasks, which defaults
// to [DefaultCapacity].
func WithCapacity(n int) Option {
	return optionFunc(func(c *schedulerConfig) error {
		if n < 1 || n > maxCapacity {
			return fmt.Errorf(`microsched: capacity %d out of range [1, %d]`, n, maxCapacity)
		}
		c.capacity = n
		return nil
	})
}

// WithDefaultPeriod sets the period substituted for out of range periods,
// which defaults to [DefaultPeriod] milliseconds.
func WithDefaultPeriod(d time.Duration) Option {
	return optionFunc(func(c *schedulerConfig) error {
		ms, ok := toMillis(d)
		if !ok || ms == 0 {
			return fmt.Errorf(`microsched: invalid default period: %s`, d)
		}
		c.defaultPeriod = ms
		return nil
	})
}

// WithMaxPeriod sets the largest accepted period, which defaults to
// [DefaultMaxPeriod] milliseconds. Periods beyond 2^31-1 milliseconds would
// break the due time arithmetic, and are rejected.
func WithMaxPeriod(d time.Duration) Option {
	return optionFunc(func(c *schedulerConfig) error {
		ms, ok := toMillis(d)
		if !ok || ms == 0 || ms > 1<<31-1 {
			return fmt.Errorf(`microsched: invalid max period: %s`, d)
		}
		c.maxPeriod = ms
		return nil
	})
}

// WithLogger configures the logger, which is otherwise disabled. The
// scheduler logs lifecycle events at debug level, and task overruns at warn
// level. Failed operations are reported to the caller only.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(c *schedulerConfig) error {
		c.logger = logger
		return nil
	})
}

// WithRunHook adds a [RunHook] to be called on each [Scheduler.Run], just
// prior to starting the main loop. If more than one [RunHook] is configured,
// they will be called in the order they were configured.
func WithRunHook(hook RunHook) Option {
	return optionFunc(func(c *schedulerConfig) error {
		if hook == nil {
			return errors.New(`microsched: run hook must not be nil`)
		}
		c.runHooks = append(c.runHooks, hook)
		return nil
	})
}

// WithIdle replaces the function called by [Scheduler.Run] after a full
// revolution of the task chain fires nothing, and by [Scheduler.Delay]
// between clock polls. It defaults to runtime.Gosched.
func WithIdle(idle func()) Option {
	return optionFunc(func(c *schedulerConfig) error {
		if idle == nil {
			return errors.New(`microsched: idle func must not be nil`)
		}
		c.idle = idle
		return nil
	})
}

// WithSleep configures a blocking sleep primitive, e.g. [Sleep], which
// [Scheduler.Delay] will delegate to, instead of spinning on the Clock.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return optionFunc(func(c *schedulerConfig) error {
		if sleep == nil {
			return errors.New(`microsched: sleep func must not be nil`)
		}
		c.sleep = sleep
		return nil
	})
}

func (x optionFunc) applyOption(c *schedulerConfig) error {
	return x(c)
}

// toMillis converts a positive duration to whole milliseconds, failing if
// it is negative or does not fit.
func toMillis(d time.Duration) (uint32, bool) {
	if d < 0 {
		return 0, false
	}
	ms := d / time.Millisecond
	if ms > 1<<32-1 {
		return 0, false
	}
	return uint32(ms), true
}
