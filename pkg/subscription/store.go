package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store is durable storage for subscription records. It owns uniqueness of
// the remote id and the atomicity of writes that must terminate sibling
// subscriptions in the same statement of work.
type Store interface {
	// FindByRemoteID returns the record mirroring the provider's
	// subscription, or ErrSubscriptionNotFound.
	FindByRemoteID(ctx context.Context, remoteID string) (*Subscription, error)

	// FindCurrentForAccount returns the account's current subscription: the
	// most recently created record among non-terminal statuses, falling back
	// to the most recent record of any status so callers can distinguish
	// "expired" from "never subscribed". Returns ErrSubscriptionNotFound
	// only when the account has no rows at all.
	FindCurrentForAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// ListForAccount returns the account's full subscription history,
	// newest first.
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]Subscription, error)

	// HasEverHadFreeTrial checks the lifetime free-trial invariant against
	// the account's full history, not just current state.
	HasEverHadFreeTrial(ctx context.Context, accountID uuid.UUID) (bool, error)

	// UpsertByRemoteID inserts or updates the record keyed on remote id.
	// On insert it must, in the same transaction, transition every other
	// non-terminal subscription of the account to canceled with the grace
	// end set to now, so two concurrent creations can never leave two
	// active rows.
	UpsertByRemoteID(ctx context.Context, sub *Subscription) (*Subscription, error)

	// CreateLocal inserts a provider-less subscription. In the same
	// transaction it re-checks the lifetime free-trial predicate for
	// KindFree records (returning ErrTrialAlreadyUsed on violation) and
	// terminates sibling non-terminal subscriptions.
	CreateLocal(ctx context.Context, sub *Subscription) (*Subscription, error)

	// Update persists dynamic-field changes to an existing record.
	Update(ctx context.Context, sub *Subscription) error

	// ListMissingPeriodEnd returns provider-backed, non-terminal records
	// whose period end is absent or only estimated, for the backfill sweep.
	ListMissingPeriodEnd(ctx context.Context, limit int) ([]Subscription, error)
}
