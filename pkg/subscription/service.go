package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service is the public surface of the subscription engine. Controllers and
// background jobs are thin adapters over these methods.
type Service interface {
	// Lifecycle operations.
	SubscribeFree(ctx context.Context, accountID uuid.UUID, planID string, freq BillingFrequency) (*Subscription, error)
	RequestPaidCheckout(ctx context.Context, accountID uuid.UUID, planID string, freq BillingFrequency, opts CheckoutOptions) (*CheckoutHandle, error)
	Cancel(ctx context.Context, accountID uuid.UUID) error
	Resume(ctx context.Context, accountID uuid.UUID) error
	SwapPlan(ctx context.Context, accountID uuid.UUID, planID string, freq BillingFrequency) error

	// Ingestion entry point, called by the event queue worker.
	HandleProviderEvent(ctx context.Context, ev *ProviderEvent) error

	// Read path with cache and staleness fallback.
	GetSubscription(ctx context.Context, accountID uuid.UUID) (*Subscription, error)
	GetAccessDecision(ctx context.Context, accountID uuid.UUID) (AccessDecision, error)
	GetBillingSummary(ctx context.Context, accountID uuid.UUID) (*Summary, error)
	GetInvoices(ctx context.Context, accountID uuid.UUID) ([]Invoice, error)
	GetMembershipHistory(ctx context.Context, accountID uuid.UUID) ([]Subscription, error)

	// Plan catalog.
	Plans(ctx context.Context) ([]Plan, error)
	ReloadPlans(ctx context.Context) error

	// BackfillPeriods re-fetches provider-backed records whose period end
	// is missing or only estimated, feeding each through the normal merge.
	// Returns how many records were reconciled.
	BackfillPeriods(ctx context.Context, limit int) (int, error)
}

// PaymentMethodRecorder persists card metadata observed on
// payment-method-attached events. Optional; accounts live outside this
// module, so the host decides where brand/last4 land.
type PaymentMethodRecorder func(ctx context.Context, accountID uuid.UUID, pm PaymentMethod) error

type service struct {
	planMu sync.RWMutex
	plans  map[string]Plan

	src        PlanSource
	store      Store
	gateway    Gateway
	cache      ViewCache
	reconciler *Reconciler
	pmRecorder PaymentMethodRecorder

	staleThreshold time.Duration
	gatewayTimeout time.Duration

	log *slog.Logger
	now func() time.Time
}

// NewService creates the subscription engine. Panics if a required
// collaborator is nil to fail fast during initialization.
func NewService(ctx context.Context, src PlanSource, gateway Gateway, store Store, cache ViewCache, opts ...ServiceOption) (Service, error) {
	if src == nil {
		panic("subscription: PlanSource is required")
	}
	if gateway == nil {
		panic("subscription: Gateway is required")
	}
	if store == nil {
		panic("subscription: Store is required")
	}
	if cache == nil {
		panic("subscription: ViewCache is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	s := &service{
		plans:          plans,
		src:            src,
		store:          store,
		gateway:        gateway,
		cache:          cache,
		staleThreshold: time.Hour,
		gatewayTimeout: 10 * time.Second,
		log:            slog.Default(),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.reconciler = NewReconciler(store, cache,
		WithReconcilerLogger(s.log),
		WithReconcilerClock(s.now),
		WithPlanLookup(s.planByID))

	return s, nil
}

func (s *service) planByID(planID string) (Plan, bool) {
	s.planMu.RLock()
	defer s.planMu.RUnlock()
	p, ok := s.plans[planID]
	return p, ok
}

// SubscribeFree activates a provider-less subscription on a free plan.
// The lifetime free-trial invariant is checked against the account's full
// history; the store re-checks it inside the insert transaction so two
// concurrent attempts cannot both pass.
func (s *service) SubscribeFree(ctx context.Context, accountID uuid.UUID, planID string, freq BillingFrequency) (*Subscription, error) {
	if !freq.Valid() {
		return nil, ErrUnknownFrequency
	}
	plan, ok := s.planByID(planID)
	if !ok {
		return nil, ErrPlanNotFound
	}
	if !plan.Enabled {
		return nil, ErrPlanDisabled
	}
	if !plan.IsFreeFor(freq) {
		return nil, ErrPlanNotFree
	}

	used, err := s.store.HasEverHadFreeTrial(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("check free trial history: %w", err)
	}
	if used {
		return nil, ErrTrialAlreadyUsed
	}

	now := s.now()
	expiry := now.AddDate(0, 0, plan.DurationFor(freq))
	sub := &Subscription{
		AccountID:   accountID,
		PlanID:      plan.ID,
		Kind:        KindFree,
		Status:      StatusActive,
		Frequency:   freq,
		StartsAt:    &now,
		GraceEndsAt: &expiry,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.store.CreateLocal(ctx, sub)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "free subscription activated",
		slog.String("account_id", accountID.String()),
		slog.String("plan_id", plan.ID),
		slog.Time("expires_at", expiry))

	if err := s.reconciler.RefreshAccountViews(ctx, created); err != nil {
		s.log.WarnContext(ctx, "failed to refresh views after free subscribe",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
	}
	return created, nil
}

// RequestPaidCheckout opens a hosted checkout session for a paid plan.
// The subscription record itself is created later, by the checkout-completed
// or subscription-created event flowing through the reconciler.
func (s *service) RequestPaidCheckout(ctx context.Context, accountID uuid.UUID, planID string, freq BillingFrequency, opts CheckoutOptions) (*CheckoutHandle, error) {
	if !freq.Valid() {
		return nil, ErrUnknownFrequency
	}
	plan, ok := s.planByID(planID)
	if !ok {
		return nil, ErrPlanNotFound
	}
	if !plan.Enabled {
		return nil, ErrPlanDisabled
	}
	priceRef := plan.RemotePriceFor(freq)
	if priceRef == "" {
		return nil, ErrPlanNotPurchasable
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	handle, err := s.gateway.CreateCheckout(gctx, CheckoutRequest{
		PriceID:    priceRef,
		AccountID:  accountID.String(),
		PlanID:     plan.ID,
		Email:      opts.Email,
		SuccessURL: opts.SuccessURL,
		CancelURL:  opts.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout for plan %s: %w", plan.ID, err)
	}
	return handle, nil
}

// Cancel stops the account's current subscription. Provider-backed records
// are canceled at period end through the gateway and the corrective event
// drives the local merge; local records lose access immediately since there
// is no grace period without a paid-through date.
func (s *service) Cancel(ctx context.Context, accountID uuid.UUID) error {
	sub, err := s.store.FindCurrentForAccount(ctx, accountID)
	if err != nil {
		return err
	}
	now := s.now()
	if !sub.Status.IsNonTerminal() && !sub.OnGracePeriodAt(now) {
		return ErrSubscriptionNotFound
	}

	if !sub.IsLocal() {
		gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
		if err := s.gateway.CancelAtPeriodEnd(gctx, sub.RemoteID); err != nil {
			return fmt.Errorf("cancel %s at provider: %w", sub.RemoteID, err)
		}
		s.log.InfoContext(ctx, "cancellation requested at provider, awaiting corrective event",
			slog.String("account_id", accountID.String()),
			slog.String("remote_id", sub.RemoteID))
		return nil
	}

	sub.Status = StatusCanceled
	sub.GraceEndsAt = &now
	sub.UpdatedAt = now
	if err := s.store.Update(ctx, sub); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "local subscription canceled",
		slog.String("account_id", accountID.String()),
		slog.String("plan_id", sub.PlanID))

	return s.reconciler.RefreshAccountViews(ctx, sub)
}

// Resume reverses a pending cancellation while the grace window is open.
func (s *service) Resume(ctx context.Context, accountID uuid.UUID) error {
	sub, err := s.store.FindCurrentForAccount(ctx, accountID)
	if err != nil {
		return err
	}
	now := s.now()
	if !sub.OnGracePeriodAt(now) {
		return ErrNotInGracePeriod
	}

	if !sub.IsLocal() {
		gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
		if err := s.gateway.Resume(gctx, sub.RemoteID); err != nil {
			return fmt.Errorf("resume %s at provider: %w", sub.RemoteID, err)
		}
		s.log.InfoContext(ctx, "resume requested at provider, awaiting corrective event",
			slog.String("account_id", accountID.String()),
			slog.String("remote_id", sub.RemoteID))
		return nil
	}

	sub.Status = StatusActive
	sub.GraceEndsAt = nil
	sub.UpdatedAt = now
	if err := s.store.Update(ctx, sub); err != nil {
		return err
	}
	return s.reconciler.RefreshAccountViews(ctx, sub)
}

// SwapPlan moves a provider-backed subscription onto a different plan's
// remote price. The corrective subscription-updated event carries the new
// price back through the merge.
func (s *service) SwapPlan(ctx context.Context, accountID uuid.UUID, planID string, freq BillingFrequency) error {
	if !freq.Valid() {
		return ErrUnknownFrequency
	}
	plan, ok := s.planByID(planID)
	if !ok {
		return ErrPlanNotFound
	}
	priceRef := plan.RemotePriceFor(freq)
	if priceRef == "" {
		return ErrPlanNotPurchasable
	}

	sub, err := s.store.FindCurrentForAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if sub.IsLocal() {
		return ErrNoRemoteBacking
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	if err := s.gateway.SwapPlan(gctx, sub.RemoteID, priceRef); err != nil {
		return fmt.Errorf("swap %s to price %s: %w", sub.RemoteID, priceRef, err)
	}
	return nil
}

// HandleProviderEvent is the single ingestion entry point. The queue worker
// redelivers on error, so only failures that a retry can fix are returned;
// events that can never be applied are acknowledged with a log line.
func (s *service) HandleProviderEvent(ctx context.Context, ev *ProviderEvent) error {
	if ev == nil {
		return nil
	}

	switch {
	case ev.Type.ReconcilesSubscription():
		return s.reconcileFromEvent(ctx, ev)

	case ev.Type == EventInvoicePaid:
		s.refreshInvoicesForEvent(ctx, ev)
		return nil

	case ev.Type == EventPaymentMethodAttached:
		return s.recordPaymentMethod(ctx, ev)

	default:
		// Unknown event classes are acknowledged for forward compatibility.
		s.log.DebugContext(ctx, "ignoring unhandled provider event",
			slog.String("provider_event", ev.ProviderEvent))
		return nil
	}
}

// reconcileFromEvent re-reads the provider's authoritative state instead of
// trusting the (possibly stale, possibly partial) event payload, then feeds
// it through the merge. This makes processing idempotent and
// order-insensitive: whichever of several racing observers runs last still
// lands on the provider's latest truth.
func (s *service) reconcileFromEvent(ctx context.Context, ev *ProviderEvent) error {
	if ev.RemoteID == "" {
		if ev.RemoteCustomerID != "" {
			return s.reconcileByCustomer(ctx, ev)
		}
		s.log.WarnContext(ctx, "provider event carries no subscription id, acknowledging",
			slog.String("provider_event", ev.ProviderEvent))
		return nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	snap, err := s.gateway.FetchSubscription(gctx, ev.RemoteID)
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, ErrRemoteNotFound):
		return s.reconcileVanishedRemote(ctx, ev)
	default:
		return fmt.Errorf("fetch %s for event %s: %w", ev.RemoteID, ev.ProviderEvent, err)
	}

	// Heal attribution gaps from the event's checkout metadata.
	if snap.AccountID == uuid.Nil {
		snap.AccountID = ev.AccountID
	}
	if snap.PlanID == "" {
		snap.PlanID = ev.PlanID
	}

	if _, err := s.reconciler.Merge(ctx, *snap); err != nil {
		if errors.Is(err, ErrInvalidSnapshot) {
			// No account to attribute to; redelivery cannot fix that.
			s.log.WarnContext(ctx, "unattributable subscription snapshot, acknowledging",
				slog.String("remote_id", ev.RemoteID),
				slog.String("provider_event", ev.ProviderEvent))
			return nil
		}
		return err
	}
	return nil
}

// reconcileByCustomer covers checkout-completed payloads that name only the
// provider customer: the customer's active subscription is looked up and
// merged as if the event had carried its id.
func (s *service) reconcileByCustomer(ctx context.Context, ev *ProviderEvent) error {
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	snap, err := s.gateway.FetchActiveForCustomer(gctx, ev.RemoteCustomerID)
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, ErrRemoteNotFound):
		// Checkout finished but the subscription object is not visible yet;
		// the subscription-created event will carry the id.
		s.log.InfoContext(ctx, "no active remote subscription for customer yet, acknowledging",
			slog.String("remote_customer_id", ev.RemoteCustomerID),
			slog.String("provider_event", ev.ProviderEvent))
		return nil
	default:
		return fmt.Errorf("fetch active subscription for customer %s: %w", ev.RemoteCustomerID, err)
	}

	if snap.AccountID == uuid.Nil {
		snap.AccountID = ev.AccountID
	}
	if snap.PlanID == "" {
		snap.PlanID = ev.PlanID
	}

	if _, err := s.reconciler.Merge(ctx, *snap); err != nil {
		if errors.Is(err, ErrInvalidSnapshot) {
			s.log.WarnContext(ctx, "unattributable subscription snapshot, acknowledging",
				slog.String("remote_customer_id", ev.RemoteCustomerID),
				slog.String("provider_event", ev.ProviderEvent))
			return nil
		}
		return err
	}
	return nil
}

// reconcileVanishedRemote handles events whose subscription the provider no
// longer returns: an existing local record is closed out, an unknown one is
// acknowledged.
func (s *service) reconcileVanishedRemote(ctx context.Context, ev *ProviderEvent) error {
	local, err := s.store.FindByRemoteID(ctx, ev.RemoteID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		s.log.WarnContext(ctx, "event for unknown remote subscription, acknowledging",
			slog.String("remote_id", ev.RemoteID),
			slog.String("provider_event", ev.ProviderEvent))
		return nil
	}
	if err != nil {
		return err
	}

	now := s.now()
	snap := Snapshot{
		RemoteID:    ev.RemoteID,
		AccountID:   local.AccountID,
		Status:      StatusCanceled,
		GraceEndsAt: &now,
		ObservedAt:  now,
	}
	_, err = s.reconciler.Merge(ctx, snap)
	return err
}

func (s *service) refreshInvoicesForEvent(ctx context.Context, ev *ProviderEvent) {
	accountID := ev.AccountID
	if accountID == uuid.Nil && ev.RemoteID != "" {
		if local, err := s.store.FindByRemoteID(ctx, ev.RemoteID); err == nil {
			accountID = local.AccountID
		}
	}
	if accountID == uuid.Nil {
		s.log.DebugContext(ctx, "invoice event without a resolvable account, acknowledging",
			slog.String("provider_event", ev.ProviderEvent))
		return
	}

	if err := s.cache.Invalidate(ctx, accountID, ViewInvoices, ViewSummary); err != nil {
		s.log.WarnContext(ctx, "failed to invalidate invoice views",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
		return
	}
	// Repopulate eagerly so the next dashboard read is instant.
	if _, err := s.GetInvoices(ctx, accountID); err != nil {
		s.log.WarnContext(ctx, "failed to warm invoice view",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
	}
}

func (s *service) recordPaymentMethod(ctx context.Context, ev *ProviderEvent) error {
	if ev.AccountID == uuid.Nil || ev.PaymentMethod == nil {
		s.log.DebugContext(ctx, "payment method event without account or card data, acknowledging",
			slog.String("provider_event", ev.ProviderEvent))
		return nil
	}
	if s.pmRecorder != nil {
		if err := s.pmRecorder(ctx, ev.AccountID, *ev.PaymentMethod); err != nil {
			return fmt.Errorf("record payment method: %w", err)
		}
	}
	return s.cache.Invalidate(ctx, ev.AccountID, ViewSummary)
}

// GetSubscription reads the account's current subscription: cache first,
// then store, then, when the stored record is stale and remote-backed, a
// bounded on-demand pull from the provider through the reconciler merge.
// A gateway failure degrades to the possibly-stale local record; staleness
// beats unavailability on a path that gates user-facing access.
func (s *service) GetSubscription(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	var cached Subscription
	if err := s.cache.Get(ctx, accountID, ViewSubscription, &cached); err == nil {
		return &cached, nil
	}

	local, err := s.store.FindCurrentForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if local.IsStaleAt(now, s.staleThreshold) && !local.IsLocal() {
		if refreshed := s.pullFromRemote(ctx, local); refreshed != nil {
			return refreshed, nil
		}
		s.log.WarnContext(ctx, "serving stale subscription after failed remote refresh",
			slog.String("account_id", accountID.String()),
			slog.Time("updated_at", local.UpdatedAt))
	}

	if err := s.cache.Warm(ctx, accountID, map[View]any{ViewSubscription: local}); err != nil {
		s.log.WarnContext(ctx, "failed to warm subscription view",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
	}
	return local, nil
}

// pullFromRemote fetches the provider's view of the record with its own
// timeout and merges it. The gateway call deliberately happens before the
// reconciler acquires the per-key lock, so a slow provider cannot stall
// event processing for the same subscription.
func (s *service) pullFromRemote(ctx context.Context, local *Subscription) *Subscription {
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	snap, err := s.gateway.FetchSubscription(gctx, local.RemoteID)
	cancel()
	if err != nil {
		s.log.WarnContext(ctx, "staleness fallback fetch failed",
			slog.String("remote_id", local.RemoteID),
			slog.String("error", err.Error()))
		return nil
	}
	if snap.AccountID == uuid.Nil {
		snap.AccountID = local.AccountID
	}

	merged, err := s.reconciler.Merge(ctx, *snap)
	if err != nil {
		s.log.WarnContext(ctx, "staleness fallback merge failed",
			slog.String("remote_id", local.RemoteID),
			slog.String("error", err.Error()))
		return nil
	}
	return merged
}

// GetAccessDecision evaluates whether the account may use gated features.
func (s *service) GetAccessDecision(ctx context.Context, accountID uuid.UUID) (AccessDecision, error) {
	var cached AccessDecision
	if err := s.cache.Get(ctx, accountID, ViewAccess, &cached); err == nil {
		return cached, nil
	}

	sub, err := s.GetSubscription(ctx, accountID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return Evaluate(nil, s.now()), nil
	}
	if err != nil {
		return AccessDecision{}, err
	}

	decision := Evaluate(sub, s.now())
	if err := s.cache.Warm(ctx, accountID, map[View]any{ViewAccess: decision}); err != nil {
		s.log.WarnContext(ctx, "failed to warm access view",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
	}
	return decision, nil
}

// GetBillingSummary returns the cached per-account billing summary,
// rebuilding it from the current record on a miss.
func (s *service) GetBillingSummary(ctx context.Context, accountID uuid.UUID) (*Summary, error) {
	var cached Summary
	if err := s.cache.Get(ctx, accountID, ViewSummary, &cached); err == nil {
		return &cached, nil
	}

	sub, err := s.GetSubscription(ctx, accountID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return &Summary{Status: StatusExpired, Reason: ReasonNoSubscription, PlanName: "No Active Plan"}, nil
	}
	if err != nil {
		return nil, err
	}

	summary := s.reconciler.buildSummary(sub, Evaluate(sub, s.now()))
	if err := s.cache.Warm(ctx, accountID, map[View]any{ViewSummary: summary}); err != nil {
		s.log.WarnContext(ctx, "failed to warm summary view",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
	}
	return &summary, nil
}

// GetInvoices returns the account's invoice list from the provider,
// read-through cached. Gateway failures degrade to an empty list; invoices
// are a display concern and must not break the billing page.
func (s *service) GetInvoices(ctx context.Context, accountID uuid.UUID) ([]Invoice, error) {
	var cached []Invoice
	if err := s.cache.Get(ctx, accountID, ViewInvoices, &cached); err == nil {
		return cached, nil
	}

	sub, err := s.store.FindCurrentForAccount(ctx, accountID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return []Invoice{}, nil
	}
	if err != nil {
		return nil, err
	}
	if sub.RemoteCustomerID == "" {
		return []Invoice{}, nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	invoices, err := s.gateway.FetchInvoices(gctx, sub.RemoteCustomerID)
	cancel()
	if err != nil {
		s.log.WarnContext(ctx, "failed to fetch invoices, serving empty list",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
		return []Invoice{}, nil
	}

	if err := s.cache.Warm(ctx, accountID, map[View]any{ViewInvoices: invoices}); err != nil {
		s.log.WarnContext(ctx, "failed to warm invoice view",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
	}
	return invoices, nil
}

// GetMembershipHistory returns the account's full subscription history,
// newest first.
func (s *service) GetMembershipHistory(ctx context.Context, accountID uuid.UUID) ([]Subscription, error) {
	var cached []Subscription
	if err := s.cache.Get(ctx, accountID, ViewMembership, &cached); err == nil {
		return cached, nil
	}

	history, err := s.store.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Warm(ctx, accountID, map[View]any{ViewMembership: history}); err != nil {
		s.log.WarnContext(ctx, "failed to warm membership view",
			slog.String("account_id", accountID.String()),
			slog.String("error", err.Error()))
	}
	return history, nil
}

// Plans lists enabled plans, cheapest first.
func (s *service) Plans(ctx context.Context) ([]Plan, error) {
	var cached []Plan
	if err := s.cache.GetPlans(ctx, &cached); err == nil {
		return cached, nil
	}

	s.planMu.RLock()
	listing := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if p.Enabled {
			listing = append(listing, p)
		}
	}
	s.planMu.RUnlock()

	sort.Slice(listing, func(i, j int) bool {
		if listing[i].Price.Amount != listing[j].Price.Amount {
			return listing[i].Price.Amount < listing[j].Price.Amount
		}
		return listing[i].Name < listing[j].Name
	})

	if err := s.cache.SetPlans(ctx, listing); err != nil {
		s.log.WarnContext(ctx, "failed to warm plans view", slog.String("error", err.Error()))
	}
	return listing, nil
}

// ReloadPlans re-reads the catalog from the source and drops the cached
// listing. Called after admin plan writes.
func (s *service) ReloadPlans(ctx context.Context) error {
	plans, err := s.src.Load(ctx)
	if err != nil {
		return errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return err
	}

	s.planMu.Lock()
	s.plans = plans
	s.planMu.Unlock()

	if err := s.cache.InvalidatePlans(ctx); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "plan catalog reloaded", slog.Int("plans", len(plans)))
	return nil
}

// BackfillPeriods sweeps provider-backed records without a confirmed period
// end and reconciles each from the provider.
func (s *service) BackfillPeriods(ctx context.Context, limit int) (int, error) {
	records, err := s.store.ListMissingPeriodEnd(ctx, limit)
	if err != nil {
		return 0, err
	}

	synced := 0
	for i := range records {
		if refreshed := s.pullFromRemote(ctx, &records[i]); refreshed != nil {
			synced++
		}
	}

	s.log.InfoContext(ctx, "period backfill sweep finished",
		slog.Int("candidates", len(records)),
		slog.Int("synced", synced))
	return synced, nil
}
