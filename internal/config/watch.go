package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long Watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
//
// The parent directory is watched, rather than the file, since most editors
// replace files by renaming over them.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Logger   zerolog.Logger
	// Current is the last config published (or loaded), used to skip
	// reloads that change nothing. May be nil.
	Current *Config
}

// Run watches until ctx is done, sending each valid and changed config to
// updates. Sends never block: if updates is full, the pending value is
// replaced by the newer one. A config that fails to load is logged and
// skipped.
func (w *Watcher) Run(ctx context.Context, updates chan *Config) error {
	dir := filepath.Dir(w.Path)
	file := filepath.Base(w.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	w.Logger.Debug().Str("dir", dir).Str("file", file).Msg("config watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("config watch %s: events closed", dir)
			}
			if filepath.Base(event.Name) != file ||
				event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.Logger.Debug().Stringer("op", event.Op).Msg("config change detected")
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("config watch %s: errors closed", dir)
			}
			w.Logger.Warn().Err(err).Str("dir", dir).Msg("config watch error")
			// events may have been missed
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				timer.Reset(debounce)
			}

		case <-timer.C:
			w.reload(updates)
		}
	}
}

func (w *Watcher) reload(updates chan *Config) {
	cfg, err := Load(w.Path)
	if err != nil {
		w.Logger.Warn().Err(err).Str("path", w.Path).Msg("config reload failed")
		return
	}
	if w.Current != nil && reflect.DeepEqual(w.Current, cfg) {
		w.Logger.Debug().Str("path", w.Path).Msg("config unchanged")
		return
	}
	w.Current = cfg
	publish(updates, cfg)
	w.Logger.Info().Str("path", w.Path).Int("tasks", len(cfg.Tasks)).Msg("config reloaded")
}

// publish sends cfg, dropping the oldest pending value if updates is full.
func publish(updates chan *Config, cfg *Config) {
	select {
	case updates <- cfg:
		return
	default:
	}
	select {
	case <-updates:
	default:
	}
	select {
	case updates <- cfg:
	default:
	}
}
