// Package watchdog notifies systemd that the dispatch loop is alive.
//
// Notifier.Ping is called on every loop iteration, so it is throttled to
// the watchdog interval, and is cheap when no notification is due.
package watchdog

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type (
	// Notifier sends sd_notify(3) state changes.
	Notifier struct {
		interval time.Duration
		limiter  *rate.Limiter
		notify   NotifyFunc
		logger   zerolog.Logger
		// sent counts the WATCHDOG=1 notifications delivered
		sent uint64
	}

	// NotifyFunc sends a single state string, reporting whether it was
	// delivered. The signature matches daemon.SdNotify, minus the
	// unsetEnvironment argument.
	NotifyFunc func(state string) (bool, error)

	Options struct {
		// Interval between watchdog notifications. If zero, half the
		// interval systemd requested (WATCHDOG_USEC) is used, and pings
		// are disabled if systemd requested none.
		Interval time.Duration
		Logger   zerolog.Logger
		// Notify overrides the transport, for tests.
		Notify NotifyFunc
	}
)

// New returns a Notifier. The returned error reports a malformed watchdog
// environment, and should be treated as fatal.
func New(options Options) (*Notifier, error) {
	interval := options.Interval
	if interval == 0 {
		requested, err := daemon.SdWatchdogEnabled(false)
		if err != nil {
			return nil, err
		}
		interval = requested / 2
	}

	notify := options.Notify
	if notify == nil {
		notify = func(state string) (bool, error) { return daemon.SdNotify(false, state) }
	}

	x := Notifier{
		interval: interval,
		notify:   notify,
		logger:   options.Logger,
	}
	if interval > 0 {
		x.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &x, nil
}

// Enabled reports whether Ping sends anything.
func (x *Notifier) Enabled() bool { return x.limiter != nil }

func (x *Notifier) Interval() time.Duration { return x.interval }

// Ping sends WATCHDOG=1, at most once per interval. It is suitable for use
// as a microsched.Watchdog.
func (x *Notifier) Ping() {
	if x.limiter == nil || !x.limiter.Allow() {
		return
	}
	if x.send(daemon.SdNotifyWatchdog) {
		x.sent++
	}
}

// Ready sends READY=1.
func (x *Notifier) Ready() { x.send(daemon.SdNotifyReady) }

// Stopping sends STOPPING=1.
func (x *Notifier) Stopping() { x.send(daemon.SdNotifyStopping) }

// Sent returns the number of watchdog notifications delivered.
func (x *Notifier) Sent() uint64 { return x.sent }

func (x *Notifier) send(state string) bool {
	ok, err := x.notify(state)
	if err != nil {
		x.logger.Warn().Err(err).Str("state", state).Msg("sd_notify failed")
		return false
	}
	if !ok {
		x.logger.Trace().Str("state", state).Msg("sd_notify: no socket")
	}
	return ok
}
