package viewcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clubmaster/billing/pkg/subscription"
)

// Cache implements subscription.ViewCache on Redis. Views are stored as
// JSON under per-account keys; TTLs only backstop missed invalidations,
// the reconciler's write-through keeps entries current.
type Cache struct {
	client redis.UniversalClient
	prefix string

	accountTTL time.Duration // subscription, access and summary views
	historyTTL time.Duration // invoices and membership history
	plansTTL   time.Duration // global plan listing
}

// New creates a Redis-backed view cache. Panics if client is nil.
func New(client redis.UniversalClient, opts ...Option) *Cache {
	if client == nil {
		panic("viewcache: redis client is required")
	}

	c := &Cache{
		client:     client,
		prefix:     "billing",
		accountTTL: 5 * time.Minute,
		historyTTL: 10 * time.Minute,
		plansTTL:   time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(accountID uuid.UUID, view subscription.View) string {
	return fmt.Sprintf("%s:account:%s:%s", c.prefix, accountID, view)
}

func (c *Cache) plansKey() string {
	return c.prefix + ":plans"
}

func (c *Cache) ttlFor(view subscription.View) time.Duration {
	switch view {
	case subscription.ViewInvoices, subscription.ViewMembership:
		return c.historyTTL
	default:
		return c.accountTTL
	}
}

func (c *Cache) Get(ctx context.Context, accountID uuid.UUID, view subscription.View, dst any) error {
	raw, err := c.client.Get(ctx, c.key(accountID, view)).Bytes()
	if errors.Is(err, redis.Nil) {
		return subscription.ErrCacheMiss
	}
	if err != nil {
		// An unreachable cache reads as a miss; the store still answers.
		return subscription.ErrCacheMiss
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return subscription.ErrCacheMiss
	}
	return nil
}

func (c *Cache) Warm(ctx context.Context, accountID uuid.UUID, views map[subscription.View]any) error {
	if len(views) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for view, value := range views {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s view: %w", view, err)
		}
		pipe.Set(ctx, c.key(accountID, view), raw, c.ttlFor(view))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warm views for account %s: %w", accountID, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, accountID uuid.UUID, views ...subscription.View) error {
	if len(views) == 0 {
		views = subscription.AccountViews()
	}
	keys := make([]string, len(views))
	for i, view := range views {
		keys[i] = c.key(accountID, view)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate views for account %s: %w", accountID, err)
	}
	return nil
}

func (c *Cache) GetPlans(ctx context.Context, dst any) error {
	raw, err := c.client.Get(ctx, c.plansKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return subscription.ErrCacheMiss
	}
	if err != nil {
		return subscription.ErrCacheMiss
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return subscription.ErrCacheMiss
	}
	return nil
}

func (c *Cache) SetPlans(ctx context.Context, plans any) error {
	raw, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("marshal plan listing: %w", err)
	}
	if err := c.client.Set(ctx, c.plansKey(), raw, c.plansTTL).Err(); err != nil {
		return fmt.Errorf("cache plan listing: %w", err)
	}
	return nil
}

func (c *Cache) InvalidatePlans(ctx context.Context) error {
	if err := c.client.Del(ctx, c.plansKey()).Err(); err != nil {
		return fmt.Errorf("invalidate plan listing: %w", err)
	}
	return nil
}
