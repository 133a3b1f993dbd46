package subscription

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType is the normalized class of a provider notification. Provider
// adapters map their own event names onto these; anything they cannot map
// passes through verbatim and is acknowledged without action.
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription-created"
	EventSubscriptionUpdated   EventType = "subscription-updated"
	EventSubscriptionCanceled  EventType = "subscription-canceled"
	EventCheckoutCompleted     EventType = "checkout-completed"
	EventPaymentMethodAttached EventType = "payment-method-attached"
	EventInvoicePaid           EventType = "invoice-paid"
)

// ProviderEvent is a verified, normalized provider notification.
// Processing is idempotent per RemoteID: the reconciler's upsert-by-remote-id
// makes replaying the same event converge on the same stored state, so the
// ingestion queue never needs to deduplicate.
type ProviderEvent struct {
	Type             EventType       `json:"type"`
	ProviderEvent    string          `json:"provider_event"` // original provider event name
	RemoteID         string          `json:"remote_id"`      // provider's subscription id, if any
	RemoteCustomerID string          `json:"remote_customer_id,omitempty"`
	AccountID        uuid.UUID       `json:"account_id,omitempty"` // recovered from checkout custom data
	PlanID           string          `json:"plan_id,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PaymentMethod    *PaymentMethod  `json:"payment_method,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

// PaymentMethod describes the card the customer attached, as far as the
// provider exposes it.
type PaymentMethod struct {
	Brand    string `json:"brand"`
	LastFour string `json:"last_four"`
}

// ReconcilesSubscription reports whether the event class carries (or points
// at) subscription state that must flow through the reconciler merge.
func (t EventType) ReconcilesSubscription() bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionCanceled, EventCheckoutCompleted:
		return true
	default:
		return false
	}
}
