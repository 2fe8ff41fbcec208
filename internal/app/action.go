package app

import (
	"github.com/rs/zerolog"

	"github.com/joeycumines/go-microsched/internal/config"
)

// action is the state behind one configured task body.
type action struct {
	name    string
	kind    string
	message string
	every   int
	logger  zerolog.Logger
	runs    int
	on      bool
}

func newAction(task config.TaskConfig, logger zerolog.Logger) *action {
	message := task.Message
	if message == "" {
		message = task.Name
	}
	return &action{
		name:    task.Name,
		kind:    task.Action,
		message: message,
		every:   task.Every,
		logger:  logger.With().Str("task", task.Name).Logger(),
	}
}

// sameBody reports whether task would bind to an equivalent body, in which
// case a reload may keep the existing one (and its state).
func (x *action) sameBody(task config.TaskConfig) bool {
	message := task.Message
	if message == "" {
		message = task.Name
	}
	return x.kind == task.Action && x.message == message && x.every == task.Every
}

func (x *action) run() {
	x.runs++
	switch x.kind {
	case config.ActionLog:
		x.logger.Info().Int("run", x.runs).Msg(x.message)
	case config.ActionToggle:
		x.on = !x.on
		x.logger.Info().Bool("on", x.on).Msg("toggle")
	case config.ActionCount:
		if x.every > 0 && x.runs%x.every == 0 {
			x.logger.Info().Int("count", x.runs).Msg("count")
		}
	}
}
