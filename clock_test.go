package microsched

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	var c Counter
	if v := c.Now(); v != 0 {
		t.Error(v)
	}
	if v := c.Tick(); v != 1 {
		t.Error(v)
	}
	if v := c.Advance(9); v != 10 {
		t.Error(v)
	}
	c.Set(math.MaxUint32)
	if v := c.Tick(); v != 0 {
		t.Error("expected wrap", v)
	}
}

func TestClockFunc(t *testing.T) {
	var clock Clock = ClockFunc(func() uint32 { return 42 })
	if v := clock.Now(); v != 42 {
		t.Error(v)
	}
}

func TestCounter_Run(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	var c Counter
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan error, 1)
	go func() {
		out <- c.Run(ctx, 0)
	}()

	deadline := time.Now().Add(time.Second * 5)
	for c.Now() < 20 {
		if time.Now().After(deadline) {
			t.Fatal("counter did not advance", c.Now())
		}
		time.Sleep(time.Millisecond * 5)
	}

	cancel()

	if err := <-out; err != context.Canceled {
		t.Error(err)
	}

	// no more ticks after return
	v := c.Now()
	time.Sleep(time.Millisecond * 20)
	if c.Now() != v {
		t.Error("counter advanced after run returned")
	}
}

func Test_due(t *testing.T) {
	for _, tc := range [...]struct {
		name     string
		now      uint32
		deadline uint32
		due      bool
	}{
		{"exact", 5, 5, true},
		{"before", 4, 5, false},
		{"after", 6, 5, true},
		{"deadline wrapped, now not", math.MaxUint32 - 3, 5, false},
		{"both wrapped", 6, 5, true},
		{"now wrapped past deadline", 2, math.MaxUint32 - 2, true},
		{"half range ahead", 0, math.MaxInt32, false},
		{"half range behind", math.MaxInt32, 0, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if v := due(tc.now, tc.deadline); v != tc.due {
				t.Errorf("due(%d, %d) = %v", tc.now, tc.deadline, v)
			}
		})
	}
}

func Test_elapsed(t *testing.T) {
	if v := elapsed(10, 25); v != 15 {
		t.Error(v)
	}
	if v := elapsed(math.MaxUint32-4, 5); v != 10 {
		t.Error(v)
	}
}
