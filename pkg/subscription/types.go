package subscription

// Kind classifies how a subscription was created and who bills it.
type Kind string

const (
	// KindFree is a local subscription with no billing provider behind it.
	// An account may hold one free subscription across its entire history.
	KindFree Kind = "free"
	// KindTrial is a provider-backed subscription still inside its trial window.
	KindTrial Kind = "trial"
	// KindPaid is a provider-backed subscription on a paid price.
	KindPaid Kind = "paid"
)

// Status represents the stored lifecycle state of a subscription.
// Expiry is derived at read time from the authoritative end timestamp,
// so StatusExpired is only ever computed, never written by the reconciler.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// IsNonTerminal reports whether the status still participates in the
// single-active-subscription invariant.
func (s Status) IsNonTerminal() bool {
	return s == StatusActive || s == StatusTrialing
}

// BillingFrequency is the billing cadence an account subscribed with.
type BillingFrequency string

const (
	FrequencyMonthly BillingFrequency = "monthly"
	FrequencyYearly  BillingFrequency = "yearly"
)

// Valid reports whether the frequency is one the plan catalog understands.
func (f BillingFrequency) Valid() bool {
	return f == FrequencyMonthly || f == FrequencyYearly
}

// IntervalUnit is the billing interval unit observed on a remote price.
// Used only to estimate a period end when the provider has not reported
// one yet.
type IntervalUnit string

const (
	IntervalDay   IntervalUnit = "day"
	IntervalWeek  IntervalUnit = "week"
	IntervalMonth IntervalUnit = "month"
	IntervalYear  IntervalUnit = "year"
)

// View names a cached, read-optimized projection of account billing state.
type View string

const (
	ViewSubscription View = "subscription"
	ViewSummary      View = "subscription_summary"
	ViewAccess       View = "access_control"
	ViewInvoices     View = "invoices"
	ViewMembership   View = "membership_history"
)

// AccountViews lists every per-account view the reconciler keeps in sync.
func AccountViews() []View {
	return []View{ViewSubscription, ViewSummary, ViewAccess, ViewInvoices, ViewMembership}
}

// Money represents a monetary amount in the smallest currency unit.
// For example, £10.99 would be Amount: 1099, Currency: "GBP".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// IsZero reports whether the amount is zero, i.e. the price is free.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// CheckoutOptions carries optional parameters for a hosted checkout session.
type CheckoutOptions struct {
	Email      string // pre-fill billing email if known
	SuccessURL string // redirect after successful payment
	CancelURL  string // redirect if the customer abandons checkout
}
