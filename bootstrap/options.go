package bootstrap

import (
	"io"
	"time"

	"github.com/kbukum/taskflow/component"
	"github.com/kbukum/taskflow/logger"
)

// Option configures the App during creation.
// Options are non-generic so they can be used with any config type.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	registry        *component.Registry
	gracefulTimeout *time.Duration
	summary         io.Writer
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the application logger. Without it the global logger is
// initialized from the config's logging section.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithGracefulTimeout bounds the whole shutdown sequence.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = &d
	}
}

// WithRegistry uses an existing component registry, for callers that need
// the registry before the app exists (health endpoints).
func WithRegistry(r *component.Registry) Option {
	return func(o *appOptions) {
		o.registry = r
	}
}

// WithSummary writes the startup summary to w once the app is ready.
// Without it the summary is only logged.
func WithSummary(w io.Writer) Option {
	return func(o *appOptions) {
		o.summary = w
	}
}
