package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrCacheMiss is returned by ViewCache.Get when the view is absent.
// A miss is never an answer: callers fall through to the store, so a reader
// can never observe an invalidated-but-not-yet-warmed entry as "no
// subscription".
var ErrCacheMiss = errors.New("view cache miss")

// ViewCache holds short-TTL, read-optimized projections of account billing
// state. The reconciler writes through it on every state transition; TTLs
// are only a backstop against missed invalidations.
type ViewCache interface {
	// Get decodes the cached view into dst, or returns ErrCacheMiss.
	Get(ctx context.Context, accountID uuid.UUID, view View, dst any) error

	// Warm stores the given views for the account.
	Warm(ctx context.Context, accountID uuid.UUID, views map[View]any) error

	// Invalidate drops the given views, or every per-account view when none
	// are named.
	Invalidate(ctx context.Context, accountID uuid.UUID, views ...View) error

	// Plan listing is a global view with a long TTL.
	GetPlans(ctx context.Context, dst any) error
	SetPlans(ctx context.Context, plans any) error
	InvalidatePlans(ctx context.Context) error
}

// NoopViewCache satisfies ViewCache without caching anything. Hosts that run
// without Redis serve every read from the store instead, which the read path
// already supports.
type NoopViewCache struct{}

func (NoopViewCache) Get(ctx context.Context, accountID uuid.UUID, view View, dst any) error {
	return ErrCacheMiss
}

func (NoopViewCache) Warm(ctx context.Context, accountID uuid.UUID, views map[View]any) error {
	return nil
}

func (NoopViewCache) Invalidate(ctx context.Context, accountID uuid.UUID, views ...View) error {
	return nil
}

func (NoopViewCache) GetPlans(ctx context.Context, dst any) error { return ErrCacheMiss }

func (NoopViewCache) SetPlans(ctx context.Context, plans any) error { return nil }

func (NoopViewCache) InvalidatePlans(ctx context.Context) error { return nil }
