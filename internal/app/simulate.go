package app

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/joeycumines/go-microsched"
	"github.com/joeycumines/go-microsched/internal/config"
)

type (
	// Firing records a task body running, at a clock reading.
	Firing struct {
		At   uint32
		Task string
	}

	Simulation struct {
		Firings []Firing
		Stats   microsched.Stats
	}
)

// Simulate runs cfg against a virtual clock, from zero until the given
// duration has elapsed (inclusive), without sleeping. Every millisecond,
// each registered task is visited exactly once, so the result depends only
// on cfg.
func Simulate(cfg *config.Config, until time.Duration, logger zerolog.Logger) (*Simulation, error) {
	if until < 0 || until/time.Millisecond > math.MaxInt32 {
		return nil, fmt.Errorf("simulate: duration out of range: %s", until)
	}
	end := uint32(until / time.Millisecond)

	var result Simulation
	host, err := New(Options{
		Config: cfg,
		Logger: logger,
		OnFire: func(name string, now uint32) {
			result.Firings = append(result.Firings, Firing{At: now, Task: name})
		},
	})
	if err != nil {
		return nil, err
	}

	scheduler, clock := host.Scheduler(), host.Clock()
	for {
		for i := scheduler.Len(); i > 0; i-- {
			scheduler.Step()
		}
		if clock.Now() == end {
			break
		}
		clock.Tick()
	}

	result.Stats = scheduler.Stats()
	return &result, nil
}

// Counts returns the number of firings per task.
func (x *Simulation) Counts() map[string]int {
	return lo.CountValuesBy(x.Firings, func(f Firing) string { return f.Task })
}
