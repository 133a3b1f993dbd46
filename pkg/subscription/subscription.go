package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the local mirror of one subscription, remote-backed or not.
// Records are never hard-deleted: terminal rows stay around for membership
// history and for the lifetime free-trial check.
//
// Temporal fields fall into two merge categories. Permanent fields (StartsAt,
// PlanID, RemotePriceID, RemoteCustomerID) are set from the first reliable
// observation and kept across later partial updates. Dynamic fields (Status,
// CurrentPeriodEnd, TrialEndsAt, GraceEndsAt) always reflect the latest
// observation.
type Subscription struct {
	ID        uuid.UUID        `json:"id"`
	AccountID uuid.UUID        `json:"account_id"`
	PlanID    string           `json:"plan_id"`
	Kind      Kind             `json:"kind"`
	Status    Status           `json:"status"`
	Frequency BillingFrequency `json:"frequency,omitempty"`

	// RemoteID is the provider's subscription ID. Empty for local (free)
	// subscriptions; immutable and unique once set. It is the idempotency
	// key for every merge that originates at the provider.
	RemoteID         string `json:"remote_id,omitempty"`
	RemoteCustomerID string `json:"remote_customer_id,omitempty"`
	RemotePriceID    string `json:"remote_price_id,omitempty"`

	StartsAt *time.Time `json:"starts_at,omitempty"`

	// CurrentPeriodEnd is when the current paid period lapses.
	// PeriodEndEstimated marks a value the reconciler computed from the
	// billing interval because the provider had not reported one yet; the
	// next confirmed observation clears it.
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	PeriodEndEstimated bool       `json:"period_end_estimated,omitempty"`

	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`

	// GraceEndsAt (the provider's ends_at) is the end of the post-cancel
	// grace window. Free subscriptions reuse it as their expiry date.
	GraceEndsAt *time.Time `json:"grace_ends_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

func (s *Subscription) IsCanceled() bool {
	return s.Status == StatusCanceled
}

// IsLocal reports whether the subscription has no billing provider behind it.
func (s *Subscription) IsLocal() bool {
	return s.RemoteID == ""
}

// OnGracePeriodAt reports whether the subscription still has a future grace
// end at the given instant. While on grace the account keeps access and the
// subscription may be resumed.
func (s *Subscription) OnGracePeriodAt(now time.Time) bool {
	return s.GraceEndsAt != nil && now.Before(*s.GraceEndsAt)
}

// AuthoritativeExpiryAt selects which end timestamp governs access at the
// given instant. Only one of the three end dates is ever authoritative:
// grace end while a cancellation is pending or the record is local free,
// trial end while trialing, period end otherwise.
func (s *Subscription) AuthoritativeExpiryAt(now time.Time) *time.Time {
	switch {
	case s.Kind == KindFree && s.IsLocal():
		return s.GraceEndsAt
	case s.OnGracePeriodAt(now):
		return s.GraceEndsAt
	case s.Status == StatusTrialing:
		return s.TrialEndsAt
	case s.Status == StatusCanceled:
		return s.GraceEndsAt
	default:
		return s.CurrentPeriodEnd
	}
}

// IsStaleAt reports whether the record has not been reconciled within the
// given threshold and should be re-read from the provider on access.
func (s *Subscription) IsStaleAt(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.UpdatedAt) > threshold
}
