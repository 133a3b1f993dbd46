package eventqueue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	pullInterval   time.Duration
	attemptTimeout time.Duration
	maxConcurrent  int
	backoff        []time.Duration
	logger         *slog.Logger
}

// WithPullInterval sets how often the worker checks for due events.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithAttemptTimeout bounds how long a single delivery attempt may run.
func WithAttemptTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithMaxConcurrent sets how many events may process at once.
func WithMaxConcurrent(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithBackoff replaces the redelivery schedule.
func WithBackoff(backoff []time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if len(backoff) > 0 {
			o.backoff = backoff
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Config holds the event queue settings read from the environment.
type Config struct {
	PullInterval    time.Duration `env:"EVENTQUEUE_PULL_INTERVAL" envDefault:"1s"`
	AttemptTimeout  time.Duration `env:"EVENTQUEUE_ATTEMPT_TIMEOUT" envDefault:"120s"`
	MaxConcurrent   int           `env:"EVENTQUEUE_MAX_CONCURRENT" envDefault:"4"`
	ShutdownTimeout time.Duration `env:"EVENTQUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Options expands the config into worker options.
func (c Config) Options() []WorkerOption {
	return []WorkerOption{
		WithPullInterval(c.PullInterval),
		WithAttemptTimeout(c.AttemptTimeout),
		WithMaxConcurrent(c.MaxConcurrent),
	}
}
