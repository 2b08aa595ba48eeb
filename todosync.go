package todosync

import (
	"log/slog"
	"time"

	"github.com/aretw0/todosync/internal/platform"
	"github.com/aretw0/todosync/pkg/core"
)

// --- Types ---

// Task is one todo.txt line.
type Task = core.Task

// Backend is a task store the engine syncs with.
type Backend = core.Backend

// Config is the decoded configuration file.
type Config = platform.Config

// SourceConfig declares one backend in Config.
type SourceConfig = platform.SourceConfig

// App is an assembled engine with the stores and backends it owns.
type App = platform.App

// --- Configuration ---

// Option configures New.
type Option = platform.Option

// WithLogger sets the logger used by every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithPolling replaces filesystem notifications with polling.
func WithPolling(enabled bool) Option {
	return platform.WithPolling(enabled)
}

// WithClock overrides the clock used for staleness.
func WithClock(now func() time.Time) Option {
	return platform.WithClock(now)
}

// LoadConfig reads and validates a JSON or YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	return platform.LoadConfig(path)
}

// FindConfig searches startDir and its parents for a configuration file.
func FindConfig(startDir string) (string, error) {
	return platform.FindConfig(startDir)
}

// --- Entry point ---

// New opens the stores and backends described by cfg and wires the engine.
// The caller must Close the returned App.
func New(cfg *Config, opts ...Option) (*App, error) {
	return platform.Assemble(cfg, opts...)
}
