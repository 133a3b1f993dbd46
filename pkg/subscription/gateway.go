package subscription

import (
	"context"
	"net/http"
	"time"
)

// Gateway abstracts the remote billing provider's query and mutation API.
// Implementations translate their SDK's shapes into Snapshots so the
// Reconciler never sees provider types.
type Gateway interface {
	// FetchSubscription reads the provider's current view of one
	// subscription. Returns ErrRemoteNotFound when the provider no longer
	// knows the id, or an error joined with ErrGatewayUnavailable on
	// transport failure.
	FetchSubscription(ctx context.Context, remoteID string) (*Snapshot, error)

	// FetchActiveForCustomer returns the customer's active subscription,
	// or ErrRemoteNotFound when none exists.
	FetchActiveForCustomer(ctx context.Context, remoteCustomerID string) (*Snapshot, error)

	// CreateCheckout opens a hosted checkout session for a remote price.
	// The request's account and plan ids travel as custom data so webhook
	// payloads can be routed back to the owning account.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutHandle, error)

	// CancelAtPeriodEnd schedules cancellation for the end of the paid
	// period; the corrective webhook event drives the local merge.
	CancelAtPeriodEnd(ctx context.Context, remoteID string) error

	// Resume removes a pending cancellation while still on grace.
	Resume(ctx context.Context, remoteID string) error

	// SwapPlan moves the subscription onto a different remote price.
	SwapPlan(ctx context.Context, remoteID, newPriceRef string) error

	// FetchInvoices lists the customer's settled invoices, newest first.
	FetchInvoices(ctx context.Context, remoteCustomerID string) ([]Invoice, error)
}

// EventParser verifies and normalizes an incoming provider notification.
// Kept separate from Gateway so the webhook receiver can verify signatures
// without holding a full gateway.
type EventParser interface {
	ParseEvent(r *http.Request) (*ProviderEvent, error)
}

// CheckoutRequest carries everything needed to open a checkout session.
type CheckoutRequest struct {
	PriceID    string
	AccountID  string // local account id, round-tripped via custom data
	PlanID     string // local plan id, round-tripped via custom data
	Email      string
	SuccessURL string
	CancelURL  string
}

// CheckoutHandle is the redirect target for a hosted checkout session.
type CheckoutHandle struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Invoice is a normalized, display-ready invoice line.
type Invoice struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Total       Money     `json:"total"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	PDFURL      string    `json:"pdf_url,omitempty"`
}
