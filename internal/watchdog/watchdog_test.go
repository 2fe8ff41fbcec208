package watchdog

import (
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

type recorder struct {
	states []string
	ok     bool
	err    error
}

func (x *recorder) notify(state string) (bool, error) {
	x.states = append(x.states, state)
	return x.ok, x.err
}

func TestNotifier_Ping_throttled(t *testing.T) {
	rec := recorder{ok: true}
	notifier, err := New(Options{Interval: time.Hour, Logger: zerolog.Nop(), Notify: rec.notify})
	if err != nil {
		t.Fatal(err)
	}
	if !notifier.Enabled() || notifier.Interval() != time.Hour {
		t.Fatal(notifier.Interval())
	}

	for i := 0; i < 100; i++ {
		notifier.Ping()
	}
	if expected := []string{daemon.SdNotifyWatchdog}; !reflect.DeepEqual(rec.states, expected) {
		t.Error(rec.states)
	}
	if notifier.Sent() != 1 {
		t.Error(notifier.Sent())
	}
}

func TestNotifier_Ping_interval(t *testing.T) {
	rec := recorder{ok: true}
	notifier, err := New(Options{Interval: time.Millisecond * 20, Notify: rec.notify})
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second * 5)
	for notifier.Sent() < 3 && time.Now().Before(deadline) {
		notifier.Ping()
		time.Sleep(time.Millisecond)
	}
	if notifier.Sent() < 3 {
		t.Error(notifier.Sent())
	}
}

func TestNotifier_undelivered(t *testing.T) {
	for _, rec := range [...]*recorder{
		{ok: false},
		{err: errors.New("some error")},
	} {
		notifier, err := New(Options{Interval: time.Hour, Notify: rec.notify})
		if err != nil {
			t.Fatal(err)
		}
		notifier.Ping()
		if notifier.Sent() != 0 {
			t.Error(notifier.Sent())
		}
		if len(rec.states) != 1 {
			t.Error(rec.states)
		}
	}
}

func TestNotifier_ReadyStopping(t *testing.T) {
	rec := recorder{ok: true}
	notifier, err := New(Options{Interval: time.Hour, Notify: rec.notify})
	if err != nil {
		t.Fatal(err)
	}
	notifier.Ready()
	notifier.Stopping()
	if expected := []string{daemon.SdNotifyReady, daemon.SdNotifyStopping}; !reflect.DeepEqual(rec.states, expected) {
		t.Error(rec.states)
	}
	if notifier.Sent() != 0 {
		t.Error(notifier.Sent())
	}
}

func TestNew_fromEnvironment(t *testing.T) {
	t.Run(`disabled`, func(t *testing.T) {
		t.Setenv("WATCHDOG_USEC", "")
		t.Setenv("WATCHDOG_PID", "")
		rec := recorder{ok: true}
		notifier, err := New(Options{Notify: rec.notify})
		if err != nil {
			t.Fatal(err)
		}
		if notifier.Enabled() {
			t.Error("expected disabled")
		}
		notifier.Ping()
		if rec.states != nil {
			t.Error(rec.states)
		}
	})

	t.Run(`requested`, func(t *testing.T) {
		t.Setenv("WATCHDOG_USEC", "4000000")
		t.Setenv("WATCHDOG_PID", "")
		notifier, err := New(Options{Notify: (&recorder{}).notify})
		if err != nil {
			t.Fatal(err)
		}
		if !notifier.Enabled() || notifier.Interval() != time.Second*2 {
			t.Error(notifier.Interval())
		}
	})

	t.Run(`other process`, func(t *testing.T) {
		t.Setenv("WATCHDOG_USEC", "4000000")
		t.Setenv("WATCHDOG_PID", strconv.Itoa(1<<30))
		notifier, err := New(Options{Notify: (&recorder{}).notify})
		if err != nil {
			t.Fatal(err)
		}
		if notifier.Enabled() {
			t.Error("expected disabled")
		}
	})

	t.Run(`malformed`, func(t *testing.T) {
		t.Setenv("WATCHDOG_USEC", "soon")
		t.Setenv("WATCHDOG_PID", "")
		if _, err := New(Options{}); err == nil {
			t.Error("expected error")
		}
	})
}
