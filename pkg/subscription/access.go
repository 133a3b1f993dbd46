package subscription

import "time"

// AccessReason explains an access decision to the caller.
type AccessReason string

const (
	ReasonNoSubscription AccessReason = "no_subscription"
	ReasonExpired        AccessReason = "expired"
	ReasonCancelling     AccessReason = "cancelling"
	ReasonActive         AccessReason = "active"
	ReasonTrialActive    AccessReason = "trial_active"
	ReasonFreePlan       AccessReason = "free_plan"
)

// AccessDecision is the normalized gate consumed by billing and membership
// views. ExpiryEstimated carries the reconciler's confirmed-vs-estimated
// flag through to consumers that care about date exactness.
type AccessDecision struct {
	CanAccess       bool         `json:"can_access"`
	Reason          AccessReason `json:"reason"`
	Expiry          *time.Time   `json:"expiry,omitempty"`
	ExpiryEstimated bool         `json:"expiry_estimated,omitempty"`
	DaysRemaining   int          `json:"days_remaining"`
}

// Evaluate is a pure function from a subscription record to an access
// decision. A nil record means the account never subscribed.
//
// Free local subscriptions are decided before the grace-window branch: they
// reuse GraceEndsAt as a plain expiry date with no cancellation pending, so
// reading them through the cancelling rule would misreport the reason.
func Evaluate(sub *Subscription, now time.Time) AccessDecision {
	if sub == nil {
		return AccessDecision{CanAccess: false, Reason: ReasonNoSubscription}
	}

	if sub.Kind == KindFree && sub.IsLocal() {
		if sub.GraceEndsAt == nil || !now.Before(*sub.GraceEndsAt) {
			return expired()
		}
		return granted(ReasonFreePlan, sub.GraceEndsAt, false, now)
	}

	onGrace := sub.OnGracePeriodAt(now)

	if !sub.Status.IsNonTerminal() && !onGrace {
		return expired()
	}

	switch {
	case onGrace:
		// A cancellation is pending with a future grace end; access holds
		// until the already-paid period runs out.
		return granted(ReasonCancelling, sub.GraceEndsAt, false, now)
	case sub.Status == StatusTrialing:
		if pastEnd(sub.TrialEndsAt, now) {
			return expired()
		}
		return granted(ReasonTrialActive, sub.TrialEndsAt, false, now)
	default: // StatusActive
		if pastEnd(sub.CurrentPeriodEnd, now) {
			return expired()
		}
		return granted(ReasonActive, sub.CurrentPeriodEnd, sub.PeriodEndEstimated, now)
	}
}

func expired() AccessDecision {
	return AccessDecision{CanAccess: false, Reason: ReasonExpired}
}

func granted(reason AccessReason, expiry *time.Time, estimated bool, now time.Time) AccessDecision {
	return AccessDecision{
		CanAccess:       true,
		Reason:          reason,
		Expiry:          expiry,
		ExpiryEstimated: estimated,
		DaysRemaining:   daysRemaining(expiry, now),
	}
}

func pastEnd(end *time.Time, now time.Time) bool {
	return end != nil && !now.Before(*end)
}

// daysRemaining is max(0, floor(expiry - now in days)); 0 for a missing or
// past expiry.
func daysRemaining(expiry *time.Time, now time.Time) int {
	if expiry == nil {
		return 0
	}
	remaining := expiry.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}
