package platform

import (
	"log/slog"
	"time"
)

type options struct {
	logger  *slog.Logger
	polling bool
	now     func() time.Time
}

// Option configures Assemble.
type Option func(*options)

func defaultOptions() *options {
	return &options{}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPolling makes the watched stores poll instead of using filesystem
// notifications.
func WithPolling(enabled bool) Option {
	return func(o *options) {
		o.polling = enabled
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
