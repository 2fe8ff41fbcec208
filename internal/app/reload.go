package app

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"

	"github.com/joeycumines/go-microsched"
	"github.com/joeycumines/go-microsched/internal/config"
)

// reload is the body of the mailbox task, applying a config published by
// the watcher (or Reload).
func (x *Host) reload(cfg *config.Config) {
	if cfg.Capacity != x.config.Capacity || cfg.Tick != x.config.Tick || cfg.Watchdog != x.config.Watchdog || cfg.Log != x.config.Log {
		x.logger.Warn().Msg("log, tick, capacity and watchdog changes require a restart")
	}

	if cfg.ReloadPeriod != x.config.ReloadPeriod {
		if err := x.scheduler.Modify(x.mailbox, cfg.ReloadPeriod.Std(), microsched.Scheduled); err != nil {
			x.logger.Error().Err(err).Msg("reload: update reload period")
		}
	}

	if err := x.apply(cfg.Tasks); err != nil {
		x.logger.Error().Err(err).Msg("reload: partially applied")
	}

	// keeps the settings that were not applied
	next := *cfg
	next.Log, next.Capacity, next.Tick, next.Watchdog = x.config.Log, x.config.Capacity, x.config.Tick, x.config.Watchdog
	x.config = &next

	x.logger.Info().Int("tasks", len(x.tasks)).Msg("reload applied")
}

// apply reconciles the registered tasks with the given table, by name.
//
// Tasks no longer present are removed. Tasks whose action changed are
// replaced. Tasks whose period or mode changed are updated in place, so
// their action state (e.g. a toggle) carries over. New tasks are added in
// table order.
func (x *Host) apply(tasks []config.TaskConfig) error {
	wanted := make(map[string]config.TaskConfig, len(tasks))
	for _, task := range tasks {
		wanted[task.Name] = task
	}

	var errs []error

	for _, name := range slices.Sorted(maps.Keys(x.tasks)) {
		task, ok := wanted[name]
		if ok && x.tasks[name].action.sameBody(task) {
			continue
		}
		if err := x.remove(name); err != nil {
			errs = append(errs, err)
		}
	}

	for _, task := range tasks {
		if e, ok := x.tasks[task.Name]; ok {
			if err := x.update(e, task); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := x.add(task); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (x *Host) add(task config.TaskConfig) error {
	act := newAction(task, x.logger)
	body := microsched.Task(act.run)
	if x.onFire != nil {
		name, onFire := task.Name, x.onFire
		body = func() {
			act.run()
			onFire(name, x.clock.Now())
		}
	}

	add := x.scheduler.Add
	if task.Immediate {
		add = x.scheduler.AddImmediate
	}
	handle, err := add(body, task.Period.Std(), task.Status())
	if err != nil {
		return fmt.Errorf("add task %q: %w", task.Name, err)
	}

	x.tasks[task.Name] = &entry{config: task, action: act, handle: handle}
	x.logEntry(x.logger.Debug(), task.Name, handle).Msg("task added")
	return nil
}

func (x *Host) remove(name string) error {
	e := x.tasks[name]
	delete(x.tasks, name)
	if err := x.scheduler.Remove(e.handle); err != nil {
		return fmt.Errorf("remove task %q: %w", name, err)
	}
	x.logEntry(x.logger.Debug(), name, e.handle).Msg("task removed")
	return nil
}

func (x *Host) update(e *entry, task config.TaskConfig) error {
	prev := e.config
	e.config = task
	if prev.Period == task.Period && prev.Mode == task.Mode {
		return nil
	}

	var err error
	switch status := task.Status(); {
	case prev.Period == task.Period && status == microsched.Paused:
		err = x.scheduler.Pause(e.handle)
	case prev.Period == task.Period && status == microsched.Scheduled:
		err = x.scheduler.Resume(e.handle, status)
	default:
		err = x.scheduler.Modify(e.handle, task.Period.Std(), status)
	}
	if err != nil {
		return fmt.Errorf("update task %q: %w", task.Name, err)
	}

	x.logEntry(x.logger.Debug(), task.Name, e.handle).
		Str("mode", task.Mode).
		Dur("period", task.Period.Std()).
		Msg("task updated")
	return nil
}

func (x *Host) logEntry(event *zerolog.Event, name string, handle microsched.Handle) *zerolog.Event {
	return event.Str("task", name).Stringer("handle", handle)
}
