// Package app runs a configured task table on a microsched.Scheduler, with
// a real tick source, the systemd watchdog, and config hot reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/go-microsched"
	"github.com/joeycumines/go-microsched/internal/config"
	"github.com/joeycumines/go-microsched/internal/watchdog"
)

// idleSleep is how long the loop yields for when nothing is due. It is
// well under the tick, so the loop still notices deadlines promptly.
const idleSleep = 250 * time.Microsecond

type (
	// Host owns a Scheduler, and the tasks bound to it from config.
	Host struct {
		config    *config.Config
		logger    zerolog.Logger
		clock     *microsched.Counter
		scheduler *microsched.Scheduler
		notifier  *watchdog.Notifier
		onFire    func(name string, now uint32)
		watchPath string

		// tasks are the configured tasks, by name, only accessed from the
		// dispatch loop once running
		tasks map[string]*entry

		// reloads is drained by the mailbox task
		reloads chan *config.Config
		mailbox microsched.Handle
	}

	Options struct {
		Config *config.Config
		Logger zerolog.Logger
		// WatchPath, if set, is watched for changes, which are applied to
		// the running Host.
		WatchPath string
		// Notifier, if set, is pinged from the dispatch loop, and told when
		// the Host is ready and stopping.
		Notifier *watchdog.Notifier
		// OnFire, if set, is called from the dispatch loop after each
		// configured task body runs.
		OnFire func(name string, now uint32)
	}

	entry struct {
		config config.TaskConfig
		action *action
		handle microsched.Handle
	}
)

// New builds a Host, with every configured task registered.
func New(options Options) (*Host, error) {
	if options.Config == nil {
		return nil, errors.New("app: nil config")
	}

	x := Host{
		config:    options.Config,
		logger:    options.Logger,
		clock:     new(microsched.Counter),
		notifier:  options.Notifier,
		onFire:    options.OnFire,
		watchPath: options.WatchPath,
		tasks:     make(map[string]*entry),
		reloads:   make(chan *config.Config, 1),
	}

	schedulerOptions := []microsched.Option{
		microsched.WithClock(x.clock),
		microsched.WithCapacity(x.config.Capacity),
		microsched.WithLogger(x.logger),
		microsched.WithIdle(func() { time.Sleep(idleSleep) }),
		microsched.WithRunHook(x.ready),
	}
	if x.notifier != nil && x.notifier.Enabled() {
		schedulerOptions = append(schedulerOptions, microsched.WithWatchdog(x.notifier.Ping))
	}

	var err error
	x.scheduler, err = microsched.New(schedulerOptions...)
	if err != nil {
		return nil, err
	}

	x.mailbox, err = x.scheduler.Add(microsched.ChannelTask(x.reloads, x.reload), x.config.ReloadPeriod.Std(), microsched.Scheduled)
	if err != nil {
		return nil, fmt.Errorf("app: add reload task: %w", err)
	}

	if err := x.apply(x.config.Tasks); err != nil {
		return nil, err
	}

	return &x, nil
}

// Run drives the Host until ctx is done, or until the tick source, config
// watcher, or dispatch loop fails. Cancellation of ctx is not an error.
func (x *Host) Run(ctx context.Context) error {
	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	// x.config is owned by the dispatch loop once it starts
	tick := x.config.Tick.Std()
	g.Go(func() error { return x.clock.Run(ctx, tick) })

	if x.watchPath != "" {
		watcher := config.Watcher{
			Path:    x.watchPath,
			Logger:  x.logger,
			Current: x.config,
		}
		g.Go(func() error { return watcher.Run(ctx, x.reloads) })
	}

	g.Go(func() error { return x.scheduler.Run(ctx) })

	err := g.Wait()

	if x.notifier != nil {
		x.notifier.Stopping()
	}

	stats := x.scheduler.Stats()
	x.logger.Info().
		Int("tasks", stats.Tasks).
		Uint64("steps", stats.Steps).
		Uint64("fires", stats.Fires).
		Uint64("overruns", stats.Overruns).
		Msg("stopped")

	if parent.Err() != nil && errors.Is(err, parent.Err()) {
		return nil
	}
	return err
}

func (x *Host) ready(ctx context.Context, scheduler *microsched.Scheduler) error {
	x.logger.Info().
		Int("tasks", len(x.tasks)).
		Int("capacity", scheduler.Cap()).
		Dur("tick", x.config.Tick.Std()).
		Msg("started")
	if x.notifier != nil {
		x.notifier.Ready()
	}
	return nil
}

// Scheduler returns the underlying scheduler, which must only be used while
// the Host is not running.
func (x *Host) Scheduler() *microsched.Scheduler { return x.scheduler }

// Clock returns the clock driving the scheduler.
func (x *Host) Clock() *microsched.Counter { return x.clock }

// Handle returns the handle of the named task.
func (x *Host) Handle(name string) (microsched.Handle, bool) {
	e, ok := x.tasks[name]
	if !ok {
		return microsched.Handle{}, false
	}
	return e.handle, true
}

// Reload queues cfg to be applied by the dispatch loop, replacing any
// reload still pending. It is safe to call from any goroutine.
func (x *Host) Reload(cfg *config.Config) {
	select {
	case x.reloads <- cfg:
		return
	default:
	}
	select {
	case <-x.reloads:
	default:
	}
	select {
	case x.reloads <- cfg:
	default:
	}
}
