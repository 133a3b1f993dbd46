package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time read of one subscription as the billing
// provider sees it. Every observer (webhook handler, staleness fallback,
// period backfill sweep) reduces its input to a Snapshot and feeds it
// through the same Reconciler merge, so the merge algorithm stays decoupled
// from any specific provider client.
type Snapshot struct {
	RemoteID         string
	RemoteCustomerID string

	// AccountID is the owning account, recovered from checkout custom data.
	// May be zero on partial observations of an already-known subscription;
	// the existing record's owner is used then.
	AccountID uuid.UUID

	PlanID    string
	PriceID   string
	Status    Status
	Frequency BillingFrequency

	StartsAt         *time.Time
	CurrentPeriodEnd *time.Time
	TrialEndsAt      *time.Time

	// GraceEndsAt is set when the provider reports a pending
	// cancel-at-period-end; it fixes when access lapses.
	GraceEndsAt *time.Time

	// Billing interval of the remote price, used to estimate a period end
	// during the race window where the provider has not populated one yet.
	IntervalUnit  IntervalUnit
	IntervalCount int

	ObservedAt time.Time
}

// Validate checks that the snapshot can be merged at all.
func (s Snapshot) Validate() error {
	if s.RemoteID == "" {
		return ErrInvalidSnapshot
	}
	return nil
}

// EstimatedPeriodEnd computes a best-effort period end from the price's
// billing interval, anchored at now. It bridges the gap until the next
// observation carries a provider-confirmed timestamp and must never be
// treated as confirmed downstream.
func (s Snapshot) EstimatedPeriodEnd(now time.Time) time.Time {
	count := s.IntervalCount
	if count <= 0 {
		count = 1
	}
	switch s.IntervalUnit {
	case IntervalYear:
		return now.AddDate(count, 0, 0)
	case IntervalWeek:
		return now.AddDate(0, 0, 7*count)
	case IntervalDay:
		return now.AddDate(0, 0, count)
	default:
		// Month is by far the most common interval and the safest guess.
		return now.AddDate(0, count, 0)
	}
}
