package viewcache

import "time"

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithAccountTTL sets the TTL for the subscription, access and summary views.
func WithAccountTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.accountTTL = d
		}
	}
}

// WithHistoryTTL sets the TTL for the invoice and membership history views.
func WithHistoryTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.historyTTL = d
		}
	}
}

// WithPlansTTL sets the TTL for the global plan listing.
func WithPlansTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.plansTTL = d
		}
	}
}

// Config holds the view cache settings read from the environment.
type Config struct {
	Prefix     string        `env:"VIEWCACHE_PREFIX" envDefault:"billing"`
	AccountTTL time.Duration `env:"VIEWCACHE_ACCOUNT_TTL" envDefault:"5m"`
	HistoryTTL time.Duration `env:"VIEWCACHE_HISTORY_TTL" envDefault:"10m"`
	PlansTTL   time.Duration `env:"VIEWCACHE_PLANS_TTL" envDefault:"1h"`
}

// Options expands the config into cache options.
func (c Config) Options() []Option {
	return []Option{
		WithPrefix(c.Prefix),
		WithAccountTTL(c.AccountTTL),
		WithHistoryTTL(c.HistoryTTL),
		WithPlansTTL(c.PlansTTL),
	}
}
