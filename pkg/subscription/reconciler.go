package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// PlanLookup resolves a plan id against the loaded catalog. The reconciler
// uses it only to enrich cached views; merges never fail on an unknown plan.
type PlanLookup func(planID string) (Plan, bool)

// Reconciler merges remote-observed subscription snapshots into the store.
// It is the single write path for provider-backed state: the webhook
// dispatcher, the staleness fallback and the period backfill sweep all end
// up here, so conflict resolution lives in exactly one place.
type Reconciler struct {
	store Store
	cache ViewCache
	locks *keyedMutex
	plans PlanLookup
	log   *slog.Logger
	now   func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithReconcilerClock injects the time source, mainly for tests.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithPlanLookup lets warmed summary views resolve plan names.
func WithPlanLookup(lookup PlanLookup) ReconcilerOption {
	return func(r *Reconciler) {
		if lookup != nil {
			r.plans = lookup
		}
	}
}

// NewReconciler creates a Reconciler. Panics if store or cache is nil to
// fail fast during initialization.
func NewReconciler(store Store, cache ViewCache, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("subscription: Store is required")
	}
	if cache == nil {
		panic("subscription: ViewCache is required")
	}

	r := &Reconciler{
		store: store,
		cache: cache,
		locks: newKeyedMutex(),
		plans: func(string) (Plan, bool) { return Plan{}, false },
		log:   slog.Default(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Merge folds the snapshot into the local record for its remote id, creating
// the record when the provider is seen first. Merges for the same remote id
// serialize on a per-key lock; the store's upsert keeps creation plus
// terminate-siblings atomic across processes.
//
// Replaying the same snapshot is idempotent: dynamic fields land on the same
// values and permanent fields are never overwritten once set.
func (r *Reconciler) Merge(ctx context.Context, snap Snapshot) (*Subscription, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(snap.RemoteID)
	defer unlock()

	now := r.now()

	local, err := r.store.FindByRemoteID(ctx, snap.RemoteID)
	switch {
	case err == nil:
	case errors.Is(err, ErrSubscriptionNotFound):
		local = nil
	default:
		return nil, fmt.Errorf("load local record for %s: %w", snap.RemoteID, err)
	}

	merged := mergeSnapshot(local, snap, now)
	if merged.AccountID == uuid.Nil {
		// A partial observation of a subscription we have never stored and
		// cannot attribute to an account. Nothing safe to persist.
		return nil, errors.Join(ErrInvalidSnapshot,
			fmt.Errorf("snapshot for %s carries no account", snap.RemoteID))
	}

	persisted, err := r.store.UpsertByRemoteID(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", snap.RemoteID, err)
	}

	if local == nil {
		r.log.InfoContext(ctx, "subscription created from remote snapshot",
			slog.String("remote_id", persisted.RemoteID),
			slog.String("account_id", persisted.AccountID.String()),
			slog.String("status", string(persisted.Status)))
	} else {
		r.log.InfoContext(ctx, "subscription reconciled",
			slog.String("remote_id", persisted.RemoteID),
			slog.String("account_id", persisted.AccountID.String()),
			slog.String("status", string(persisted.Status)),
			slog.Bool("period_end_estimated", persisted.PeriodEndEstimated))
	}

	// Warm before releasing the per-key lock so no reader can observe an
	// invalidated-but-empty access view.
	if err := r.RefreshAccountViews(ctx, persisted); err != nil {
		r.log.WarnContext(ctx, "failed to refresh account views after merge",
			slog.String("account_id", persisted.AccountID.String()),
			slog.String("error", err.Error()))
	}

	return persisted, nil
}

// RefreshAccountViews invalidates and immediately repopulates the account's
// cached views from the given record. Also used by the service after local
// (provider-less) writes so both write paths keep the cache discipline.
func (r *Reconciler) RefreshAccountViews(ctx context.Context, sub *Subscription) error {
	if err := r.cache.Invalidate(ctx, sub.AccountID); err != nil {
		return err
	}

	now := r.now()
	decision := Evaluate(sub, now)

	views := map[View]any{
		ViewSubscription: sub,
		ViewAccess:       decision,
		ViewSummary:      r.buildSummary(sub, decision),
	}
	return r.cache.Warm(ctx, sub.AccountID, views)
}

// Summary is the cached per-account billing summary view.
type Summary struct {
	PlanID          string       `json:"plan_id"`
	PlanName        string       `json:"plan_name"`
	Status          Status       `json:"status"`
	Reason          AccessReason `json:"reason"`
	CanAccess       bool         `json:"can_access"`
	Expiry          *time.Time   `json:"expiry,omitempty"`
	ExpiryEstimated bool         `json:"expiry_estimated,omitempty"`
	DaysRemaining   int          `json:"days_remaining"`
}

func (r *Reconciler) buildSummary(sub *Subscription, decision AccessDecision) Summary {
	s := Summary{
		Status:          sub.Status,
		Reason:          decision.Reason,
		CanAccess:       decision.CanAccess,
		Expiry:          decision.Expiry,
		ExpiryEstimated: decision.ExpiryEstimated,
		DaysRemaining:   decision.DaysRemaining,
		PlanID:          sub.PlanID,
		PlanName:        sub.PlanID,
	}
	if plan, ok := r.plans(sub.PlanID); ok {
		s.PlanName = plan.Name
	}
	return s
}

// mergeSnapshot resolves one incoming snapshot against the local record (nil
// for a creation) into the row to persist. Pure so the conflict rules are
// testable without a store.
//
// Dynamic fields (status and the end timestamps) always take the snapshot's
// values: the remote is the latest truth for them. Permanent fields keep the
// local value when already set and adopt the snapshot's otherwise, healing
// missing data without clobbering previously-filled history.
func mergeSnapshot(local *Subscription, snap Snapshot, now time.Time) *Subscription {
	var out Subscription
	if local != nil {
		out = *local
	} else {
		out = Subscription{
			RemoteID:  snap.RemoteID,
			Kind:      kindForStatus(snap.Status),
			CreatedAt: now,
		}
	}

	// Permanent fields: first reliable observation wins.
	if out.AccountID == uuid.Nil {
		out.AccountID = snap.AccountID
	}
	if out.PlanID == "" {
		out.PlanID = snap.PlanID
	}
	if out.RemotePriceID == "" {
		out.RemotePriceID = snap.PriceID
	}
	if out.RemoteCustomerID == "" {
		out.RemoteCustomerID = snap.RemoteCustomerID
	}
	if out.StartsAt == nil {
		if snap.StartsAt != nil {
			out.StartsAt = snap.StartsAt
		} else {
			t := now
			out.StartsAt = &t
		}
	}
	if out.Frequency == "" || !out.Frequency.Valid() {
		out.Frequency = frequencyForInterval(snap)
	}

	// Dynamic fields: latest observation wins unconditionally.
	out.Status = snap.Status
	out.TrialEndsAt = snap.TrialEndsAt
	out.GraceEndsAt = snap.GraceEndsAt

	// A trial that the provider now reports active has converted to paid.
	if out.Kind == KindTrial && snap.Status == StatusActive {
		out.Kind = KindPaid
	}

	// Period-end resolution: a provider-confirmed timestamp is used
	// verbatim. When the snapshot lacks one (the remote object is not fully
	// populated yet), keep a previously confirmed date rather than degrade
	// it to a guess; otherwise bridge with an interval-derived estimate
	// until the next observation corrects it.
	switch {
	case snap.CurrentPeriodEnd != nil:
		out.CurrentPeriodEnd = snap.CurrentPeriodEnd
		out.PeriodEndEstimated = false
	case local != nil && local.CurrentPeriodEnd != nil && !local.PeriodEndEstimated:
		out.CurrentPeriodEnd = local.CurrentPeriodEnd
		out.PeriodEndEstimated = false
	default:
		estimated := snap.EstimatedPeriodEnd(now)
		out.CurrentPeriodEnd = &estimated
		out.PeriodEndEstimated = true
	}

	out.UpdatedAt = now
	return &out
}

func kindForStatus(status Status) Kind {
	if status == StatusTrialing {
		return KindTrial
	}
	return KindPaid
}

func frequencyForInterval(snap Snapshot) BillingFrequency {
	if snap.Frequency.Valid() {
		return snap.Frequency
	}
	if snap.IntervalUnit == IntervalYear {
		return FrequencyYearly
	}
	return FrequencyMonthly
}
