package subscription

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock injects the time source, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStalenessThreshold sets how old a stored record may be before a read
// triggers an on-demand provider fetch. Defaults to one hour.
func WithStalenessThreshold(d time.Duration) ServiceOption {
	return func(s *service) {
		if d > 0 {
			s.staleThreshold = d
		}
	}
}

// WithGatewayTimeout bounds every synchronous provider call. Defaults to
// ten seconds.
func WithGatewayTimeout(d time.Duration) ServiceOption {
	return func(s *service) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

// WithPaymentMethodRecorder registers the hook that persists card metadata
// from payment-method-attached events.
func WithPaymentMethodRecorder(fn PaymentMethodRecorder) ServiceOption {
	return func(s *service) {
		s.pmRecorder = fn
	}
}

// Config carries the engine's tunables in the usual env-tagged form.
type Config struct {
	StalenessThreshold time.Duration `env:"BILLING_STALENESS_THRESHOLD" envDefault:"1h"`  // max age of local data before a read pulls from the provider
	GatewayTimeout     time.Duration `env:"BILLING_GATEWAY_TIMEOUT" envDefault:"10s"`    // budget for one synchronous provider call
	PlansPath          string        `env:"BILLING_PLANS_PATH" envDefault:"plans.yaml"`  // plan catalog file for the YAML source
}

// Options translates a Config into service options.
func (c Config) Options() []ServiceOption {
	return []ServiceOption{
		WithStalenessThreshold(c.StalenessThreshold),
		WithGatewayTimeout(c.GatewayTimeout),
	}
}
