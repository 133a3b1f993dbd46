// Package subscription keeps a local, queryable mirror of subscription state
// that lives authoritatively at an external billing provider.
//
// The provider owns billing truth; this package owns a durable copy the rest
// of the application can read in microseconds without touching the provider's
// API. Provider webhooks, staleness-triggered refreshes, and operator-driven
// backfills all converge on one reconciliation path, so every write follows
// the same merge rules regardless of where the observation came from.
//
// # Architecture
//
// The package is organized around a small number of collaborating pieces:
//
//   - Service: the application-facing interface for all billing operations
//   - Reconciler: merges provider Snapshots into stored Subscriptions
//   - Store: durable subscription storage (PostgreSQL implementation included)
//   - Gateway: on-demand reads and commands against the provider
//   - EventParser: verifies and normalizes provider webhooks
//   - ViewCache: read-through cache of denormalized account views
//   - PlanSource: loads the plan catalog (YAML, static, or database)
//
// Subscription fields split into two merge categories. Permanent fields
// (account, plan, price reference, start date) are fixed at the first
// reliable observation and healed when a later observation supplies a value
// an earlier partial one lacked. Dynamic fields (status, period end, trial
// end, grace end) always track the latest observation. The reconciler never
// overwrites a known permanent value with an empty one.
//
// # Quick Start
//
// Wire the service from its parts:
//
//	import "github.com/clubmaster/billing/pkg/subscription"
//
//	gateway, err := subscription.NewPaddleGateway(subscription.PaddleConfig{
//		APIKey:        os.Getenv("PADDLE_API_KEY"),
//		WebhookSecret: os.Getenv("PADDLE_WEBHOOK_SECRET"),
//		Environment:   "sandbox",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	store := subscription.NewPGStore(pool)
//	plans := subscription.NewYAMLSource("plans.yml")
//
//	svc, err := subscription.NewService(ctx, plans, gateway, store, cache,
//		subscription.WithStalenessThreshold(time.Hour),
//	)
//
// # Access Control
//
// Access decisions are computed, never stored. Evaluate is a pure function
// of a subscription record and an instant, so the same record always yields
// the same decision at the same time:
//
//	decision, err := svc.GetAccessDecision(ctx, accountID)
//	if err != nil {
//		// storage failure; decide fail-open or fail-closed at the call site
//	}
//	if !decision.CanAccess {
//		// decision.Reason is one of: no_subscription, expired, ...
//	}
//
// A canceled subscription keeps access until its grace period lapses, and a
// trialing one until the trial end passes. DaysRemaining is always populated
// when an expiry is known, so UIs can render countdowns without re-deriving
// dates.
//
// # Event Ingestion
//
// Provider webhooks are verified and normalized by the EventParser, then
// handed to HandleProviderEvent. Subscription-shaped events do not trust
// their payloads: the handler re-reads the authoritative state from the
// provider and merges that, so out-of-order and duplicate deliveries
// converge on the same stored state. Unknown event types are acknowledged
// without action.
//
//	event, err := gateway.ParseEvent(r)
//	if err != nil {
//		// signature failure; reject with 400
//	}
//	if err := svc.HandleProviderEvent(ctx, event); err != nil {
//		// transient failure; redeliver later
//	}
//
// Pair this with the eventqueue package for durable at-least-once delivery
// with bounded retries and a dead letter queue.
//
// # Staleness Fallback
//
// Reads flow cache, then store. When the stored record has not been
// reconciled within the staleness threshold and is provider-backed, the
// service re-reads the provider inside a bounded time budget and merges the
// result before answering. If the provider cannot answer in time, the stale
// local record is served rather than failing the read.
//
// # Error Handling
//
// All errors are sentinel values checked with errors.Is:
//
//	sub, err := svc.GetSubscription(ctx, accountID)
//	switch {
//	case errors.Is(err, subscription.ErrSubscriptionNotFound):
//		// account has never subscribed
//	case errors.Is(err, subscription.ErrStoreUnavailable):
//		// storage failure, retryable
//	}
//
// ErrTrialAlreadyUsed enforces the one-free-subscription-per-account-lifetime
// rule; it is raised even after the free record has long expired.
package subscription
