package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig holds configuration for the Paddle billing gateway.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleGateway implements Gateway and EventParser on the official Paddle
// SDK. All provider quirks (string timestamps, scheduled changes, custom
// data round-trips) are contained here; the rest of the engine only ever
// sees Snapshots and ProviderEvents.
type PaddleGateway struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleGateway creates a Paddle-backed billing gateway.
func NewPaddleGateway(config PaddleConfig) (*PaddleGateway, error) {
	if config.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if config.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleGateway{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

// FetchSubscription reads the provider's current view of one subscription.
func (p *PaddleGateway) FetchSubscription(ctx context.Context, remoteID string) (*Snapshot, error) {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: remoteID,
	})
	if err != nil {
		if isPaddleNotFound(err) {
			return nil, ErrRemoteNotFound
		}
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}
	return p.snapshotFromPaddle(sub), nil
}

// FetchActiveForCustomer returns the customer's active (or trialing)
// subscription, or ErrRemoteNotFound when none exists.
func (p *PaddleGateway) FetchActiveForCustomer(ctx context.Context, remoteCustomerID string) (*Snapshot, error) {
	res, err := p.client.SubscriptionsClient.ListSubscriptions(ctx, &paddle.ListSubscriptionsRequest{
		CustomerID: []string{remoteCustomerID},
		Status:     []string{"active", "trialing"},
	})
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}

	var found *Snapshot
	err = res.Iter(ctx, func(sub *paddle.Subscription) (bool, error) {
		found = p.snapshotFromPaddle(sub)
		return false, nil // first match is enough
	})
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}
	if found == nil {
		return nil, ErrRemoteNotFound
	}
	return found, nil
}

// CreateCheckout opens a hosted checkout session. The local account and plan
// ids travel as transaction custom data so webhook payloads can be routed
// back to the owning account.
func (p *PaddleGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutHandle, error) {
	if req.PriceID == "" {
		return nil, errors.New("price ID is required")
	}
	if req.AccountID == "" {
		return nil, errors.New("account ID is required")
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"account_id": req.AccountID,
			"plan_id":    req.PlanID,
		},
	}
	if req.Email != "" {
		transactionReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil || *transaction.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutHandle{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour), // Paddle checkout links expire in 24 hours
	}, nil
}

// CancelAtPeriodEnd schedules cancellation for the end of the paid period.
func (p *PaddleGateway) CancelAtPeriodEnd(ctx context.Context, remoteID string) error {
	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: remoteID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
	})
	if err != nil {
		if isPaddleNotFound(err) {
			return ErrRemoteNotFound
		}
		return errors.Join(ErrGatewayUnavailable, err)
	}
	return nil
}

// Resume removes a pending cancellation while the subscription is still on
// grace. Paddle models this as clearing the scheduled change; the resume
// endpoint only applies to paused subscriptions.
func (p *PaddleGateway) Resume(ctx context.Context, remoteID string) error {
	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:  remoteID,
		ScheduledChange: paddle.NewPatchField[*paddle.SubscriptionScheduledChange](nil),
	})
	if err != nil {
		if isPaddleNotFound(err) {
			return ErrRemoteNotFound
		}
		return errors.Join(ErrGatewayUnavailable, err)
	}
	return nil
}

// SwapPlan moves the subscription onto a different catalog price with an
// immediate prorated charge.
func (p *PaddleGateway) SwapPlan(ctx context.Context, remoteID, newPriceRef string) error {
	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
		PriceID:  newPriceRef,
		Quantity: 1,
	})

	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       remoteID,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(paddle.ProrationBillingModeProratedImmediately),
	})
	if err != nil {
		if isPaddleNotFound(err) {
			return ErrRemoteNotFound
		}
		return errors.Join(ErrGatewayUnavailable, err)
	}
	return nil
}

// FetchInvoices lists the customer's completed transactions as a normalized
// invoice list.
func (p *PaddleGateway) FetchInvoices(ctx context.Context, remoteCustomerID string) ([]Invoice, error) {
	res, err := p.client.TransactionsClient.ListTransactions(ctx, &paddle.ListTransactionsRequest{
		CustomerID: []string{remoteCustomerID},
		Status:     []string{"completed"},
	})
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}

	invoices := make([]Invoice, 0, 16)
	err = res.Iter(ctx, func(t *paddle.Transaction) (bool, error) {
		invoices = append(invoices, p.invoiceFromTransaction(t))
		// Billing pages only show recent history; one page is plenty.
		return len(invoices) < 50, nil
	})
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}
	return invoices, nil
}

func (p *PaddleGateway) invoiceFromTransaction(t *paddle.Transaction) Invoice {
	inv := Invoice{
		ID:          t.ID,
		Status:      string(t.Status),
		Description: "Subscription",
		Date:        parsePaddleTime(&t.CreatedAt),
	}
	if amount, err := strconv.ParseInt(t.Details.Totals.Total, 10, 64); err == nil {
		inv.Total = Money{Amount: amount, Currency: string(t.Details.Totals.CurrencyCode)}
	}
	if len(t.Items) > 0 && t.Items[0].Price.Name != nil && *t.Items[0].Price.Name != "" {
		inv.Description = *t.Items[0].Price.Name
	}
	return inv
}

// snapshotFromPaddle reduces a Paddle subscription object to the engine's
// Snapshot value.
func (p *PaddleGateway) snapshotFromPaddle(sub *paddle.Subscription) *Snapshot {
	snap := &Snapshot{
		RemoteID:         sub.ID,
		RemoteCustomerID: sub.CustomerID,
		Status:           mapPaddleStatus(string(sub.Status)),
		StartsAt:         parsePaddleTimePtr(sub.StartedAt),
		ObservedAt:       time.Now().UTC(),
	}

	if sub.CurrentBillingPeriod != nil {
		snap.CurrentPeriodEnd = parsePaddleTimePtr(&sub.CurrentBillingPeriod.EndsAt)
	}
	if snap.Status == StatusTrialing {
		// Paddle reports the trial window as the current billing period.
		snap.TrialEndsAt = snap.CurrentPeriodEnd
	}

	if len(sub.Items) > 0 {
		snap.PriceID = sub.Items[0].Price.ID
	}
	snap.IntervalUnit = mapPaddleInterval(string(sub.BillingCycle.Interval))
	snap.IntervalCount = sub.BillingCycle.Frequency
	if snap.IntervalUnit == IntervalYear {
		snap.Frequency = FrequencyYearly
	} else {
		snap.Frequency = FrequencyMonthly
	}

	// A scheduled cancel fixes when access lapses; a canceled subscription
	// keeps access until the already-paid period runs out.
	if sub.ScheduledChange != nil && sub.ScheduledChange.Action == paddle.ScheduledChangeActionCancel {
		snap.GraceEndsAt = parsePaddleTimePtr(&sub.ScheduledChange.EffectiveAt)
	} else if snap.Status == StatusCanceled {
		snap.GraceEndsAt = snap.CurrentPeriodEnd
	}

	// Recover the owning account and plan from checkout custom data.
	if custom, ok := sub.CustomData["account_id"].(string); ok {
		if accountID, err := uuid.Parse(custom); err == nil {
			snap.AccountID = accountID
		}
	}
	if planID, ok := sub.CustomData["plan_id"].(string); ok {
		snap.PlanID = planID
	}

	return snap
}

// ParseEvent verifies the webhook signature and normalizes the payload into
// a ProviderEvent. Unmapped Paddle event names pass through verbatim so the
// dispatcher can acknowledge them.
func (p *PaddleGateway) ParseEvent(r *http.Request) (*ProviderEvent, error) {
	valid, err := p.verifier.Verify(r)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}

	var envelope struct {
		EventID    string         `json:"event_id"`
		EventType  string         `json:"event_type"`
		OccurredAt string         `json:"occurred_at"`
		Data       map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	ev := &ProviderEvent{
		Type:          mapPaddleEventType(envelope.EventType),
		ProviderEvent: envelope.EventType,
		OccurredAt:    parsePaddleTime(&envelope.OccurredAt),
		Raw:           json.RawMessage(body),
	}

	if id, ok := envelope.Data["id"].(string); ok && strings.HasPrefix(envelope.EventType, "subscription.") {
		ev.RemoteID = id
	}
	if subID, ok := envelope.Data["subscription_id"].(string); ok && subID != "" {
		ev.RemoteID = subID
	}
	if customerID, ok := envelope.Data["customer_id"].(string); ok {
		ev.RemoteCustomerID = customerID
	}

	if custom, ok := envelope.Data["custom_data"].(map[string]any); ok {
		if accountID, ok := custom["account_id"].(string); ok {
			if parsed, err := uuid.Parse(accountID); err == nil {
				ev.AccountID = parsed
			}
		}
		if planID, ok := custom["plan_id"].(string); ok {
			ev.PlanID = planID
		}
	}

	if card, ok := envelope.Data["card"].(map[string]any); ok {
		pm := &PaymentMethod{}
		if brand, ok := card["type"].(string); ok {
			pm.Brand = brand
		}
		if last4, ok := card["last4"].(string); ok {
			pm.LastFour = last4
		}
		ev.PaymentMethod = pm
	}

	return ev, nil
}

func mapPaddleEventType(name string) EventType {
	switch name {
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.activated", "subscription.resumed",
		"subscription.past_due", "subscription.trialing", "subscription.paused":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionCanceled
	case "transaction.completed":
		return EventCheckoutCompleted
	case "transaction.paid":
		return EventInvoicePaid
	case "payment_method.saved":
		return EventPaymentMethodAttached
	default:
		return EventType(name)
	}
}

// mapPaddleStatus folds Paddle's status vocabulary onto the engine's
// four-state model. past_due keeps nominal access until the period end
// passes; paused behaves like a cancellation.
func mapPaddleStatus(status string) Status {
	switch strings.ToLower(status) {
	case "trialing":
		return StatusTrialing
	case "active", "past_due":
		return StatusActive
	case "canceled", "cancelled", "paused":
		return StatusCanceled
	default:
		return StatusExpired
	}
}

func mapPaddleInterval(interval string) IntervalUnit {
	switch strings.ToLower(interval) {
	case "day":
		return IntervalDay
	case "week":
		return IntervalWeek
	case "year":
		return IntervalYear
	default:
		return IntervalMonth
	}
}

func parsePaddleTime(s *string) time.Time {
	t := parsePaddleTimePtr(s)
	if t == nil {
		return time.Time{}
	}
	return *t
}

func parsePaddleTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func isPaddleNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "not_found") || strings.Contains(err.Error(), "404")
}
