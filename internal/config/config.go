// Package config loads the task table and host settings for the microsched
// command, from YAML.
//
// Durations are Go duration strings (e.g. "250ms", "2s"). Omitted fields
// take the defaults documented on each type.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	yaml "go.yaml.in/yaml/v3"

	"github.com/joeycumines/go-microsched"
)

// Actions are the built-in task bodies a task may be bound to.
var Actions = []string{ActionLog, ActionToggle, ActionCount}

const (
	// ActionLog logs the task's message each run.
	ActionLog = "log"
	// ActionToggle flips a boolean (e.g. an LED) each run, logging the new
	// state.
	ActionToggle = "toggle"
	// ActionCount counts runs, logging the total every Every runs.
	ActionCount = "count"
)

const (
	DefaultTick     = time.Millisecond
	DefaultLogLevel = "info"
	// DefaultReloadPeriod is how often pending reloads are applied, from
	// within the dispatch loop.
	DefaultReloadPeriod = 100 * time.Millisecond
)

type (
	// Config is the root of the YAML document.
	//
	// Defaults (when fields are omitted/zero):
	//   - tick: 1ms
	//   - capacity: 255
	//   - reload_period: 100ms
	//   - log.level: info
	//   - log.format: console
	Config struct {
		Log          LogConfig      `yaml:"log"`
		Tick         Duration       `yaml:"tick"`
		Capacity     int            `yaml:"capacity"`
		ReloadPeriod Duration       `yaml:"reload_period"`
		Watchdog     WatchdogConfig `yaml:"watchdog"`
		Tasks        []TaskConfig   `yaml:"tasks"`
	}

	LogConfig struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	// WatchdogConfig controls notifications to the service manager. If
	// Interval is zero, the interval requested by systemd (WATCHDOG_USEC)
	// is halved and used.
	WatchdogConfig struct {
		Enabled  bool     `yaml:"enabled"`
		Interval Duration `yaml:"interval"`
	}

	// TaskConfig describes one task. Name identifies the task across
	// reloads. A zero Period selects the scheduler's default period.
	TaskConfig struct {
		Name      string   `yaml:"name"`
		Action    string   `yaml:"action"`
		Period    Duration `yaml:"period"`
		Mode      string   `yaml:"mode"`
		Immediate bool     `yaml:"immediate"`
		Message   string   `yaml:"message"`
		Every     int      `yaml:"every"`
	}

	// Duration is a time.Duration, represented in YAML as a Go duration
	// string.
	Duration time.Duration
)

var _ yaml.Unmarshaler = (*Duration)(nil)

// Load reads, parses and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document, rejecting unknown fields, then applies
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Tick == 0 {
		c.Tick = Duration(DefaultTick)
	}
	if c.Capacity == 0 {
		c.Capacity = microsched.DefaultCapacity
	}
	if c.ReloadPeriod == 0 {
		c.ReloadPeriod = Duration(DefaultReloadPeriod)
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = DefaultLogLevel
	}
	for i := range c.Tasks {
		t := &c.Tasks[i]
		if t.Mode == "" {
			t.Mode = microsched.Scheduled.String()
		}
		if t.Action == ActionCount && t.Every == 0 {
			t.Every = 10
		}
	}
}

// Validate reports every problem with the config, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Tick < 0 {
		errs = append(errs, errors.New("tick: must be >= 0"))
	}
	if c.ReloadPeriod < 0 {
		errs = append(errs, errors.New("reload_period: must be >= 0"))
	}
	if c.Capacity < 1 {
		errs = append(errs, fmt.Errorf("capacity: must be >= 1, got %d", c.Capacity))
	} else if len(c.Tasks) >= c.Capacity {
		// one slot is reserved for applying reloads
		errs = append(errs, fmt.Errorf("tasks: %d tasks need capacity > %d", len(c.Tasks), c.Capacity))
	}
	if c.Watchdog.Interval < 0 {
		errs = append(errs, errors.New("watchdog.interval: must be >= 0"))
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != "console" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	for i, t := range c.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		}
		if !lo.Contains(Actions, t.Action) {
			errs = append(errs, fmt.Errorf("%s.action: unknown action %q (want one of %s)", path, t.Action, strings.Join(Actions, ", ")))
		}
		if t.Period < 0 {
			errs = append(errs, fmt.Errorf("%s.period: must be >= 0", path))
		}
		if _, err := microsched.ParseStatus(t.Mode); err != nil {
			errs = append(errs, fmt.Errorf("%s.mode: %w", path, err))
		}
		if t.Every < 0 {
			errs = append(errs, fmt.Errorf("%s.every: must be >= 0", path))
		}
	}

	names := lo.Map(c.Tasks, func(t TaskConfig, _ int) string { return t.Name })
	for _, name := range lo.FindDuplicates(names) {
		errs = append(errs, fmt.Errorf("tasks: duplicate name %q", name))
	}

	return errors.Join(errs...)
}

// Status returns the parsed mode, which Validate has checked.
func (t TaskConfig) Status() microsched.Status {
	status, _ := microsched.ParseStatus(t.Mode)
	return status
}

// Task returns the task with the given name.
func (c *Config) Task(name string) (TaskConfig, bool) {
	return lo.Find(c.Tasks, func(t TaskConfig) bool { return t.Name == name })
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	s := strings.TrimSpace(node.Value)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
