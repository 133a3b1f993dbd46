package subscription

import "errors"

var (
	// Validation errors: bad input, rejected synchronously, never retried.
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrPlanDisabled             = errors.New("subscription plan is disabled")
	ErrPlanNotFree              = errors.New("subscription plan is not free for the requested frequency")
	ErrPlanNotPurchasable       = errors.New("subscription plan has no remote price for the requested frequency")
	ErrUnknownFrequency         = errors.New("unknown billing frequency")
	ErrInvalidSnapshot          = errors.New("remote snapshot is missing required fields")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	// Conflict errors: surfaced to the caller, never retried.
	ErrTrialAlreadyUsed = errors.New("free trial already consumed for this account")
	ErrNotInGracePeriod = errors.New("subscription is not within its grace period")
	ErrNoRemoteBacking  = errors.New("subscription has no remote billing provider behind it")

	// Not-found conditions.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrRemoteNotFound       = errors.New("subscription not found at the billing provider")

	// Transient gateway errors: retried on the ingestion path, degraded to
	// stale data on the synchronous read path.
	ErrGatewayUnavailable = errors.New("billing gateway unavailable")

	// Persistence errors: fatal for the current operation; event redelivery
	// handles eventual success.
	ErrStoreUnavailable = errors.New("subscription store unavailable")

	// Provider adapter errors.
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrNoCheckoutURL             = errors.New("no checkout URL returned from provider")
)
