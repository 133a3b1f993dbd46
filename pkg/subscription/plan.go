package subscription

import (
	"context"
	"errors"
	"fmt"
)

// Plan is a price/duration template. Read-mostly: admin writes are rare and
// invalidate the cached plan listing.
type Plan struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Tagline string `json:"tagline,omitempty" yaml:"tagline,omitempty"`

	Price       Money `json:"price" yaml:"price"`
	YearlyPrice Money `json:"yearly_price" yaml:"yearly_price"`

	// Access duration granted per billing frequency, in days.
	DurationDays       int `json:"duration_days" yaml:"duration_days"`
	YearlyDurationDays int `json:"yearly_duration_days" yaml:"yearly_duration_days"`

	// Remote price identifiers, one per billing frequency. Empty for plans
	// that are never sold through the provider.
	RemoteMonthlyPriceID string `json:"remote_monthly_price_id,omitempty" yaml:"remote_monthly_price_id,omitempty"`
	RemoteYearlyPriceID  string `json:"remote_yearly_price_id,omitempty" yaml:"remote_yearly_price_id,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// PriceFor returns the price charged at the given frequency.
// Plans without a distinct yearly price fall back to the monthly one.
func (p Plan) PriceFor(freq BillingFrequency) Money {
	if freq == FrequencyYearly && p.YearlyPrice.Amount > 0 {
		return p.YearlyPrice
	}
	return p.Price
}

// DurationFor returns how many days of access one billing period grants.
func (p Plan) DurationFor(freq BillingFrequency) int {
	if freq == FrequencyYearly {
		if p.YearlyDurationDays > 0 {
			return p.YearlyDurationDays
		}
		return 365
	}
	if p.DurationDays > 0 {
		return p.DurationDays
	}
	return 30
}

// RemotePriceFor returns the provider price reference for the frequency,
// or empty when the plan is not sold remotely at that cadence.
func (p Plan) RemotePriceFor(freq BillingFrequency) string {
	if freq == FrequencyYearly {
		return p.RemoteYearlyPriceID
	}
	return p.RemoteMonthlyPriceID
}

// IsFreeFor reports whether subscribing at the given frequency costs nothing.
func (p Plan) IsFreeFor(freq BillingFrequency) bool {
	return p.PriceFor(freq).IsZero()
}

// BillingLabel derives a human-readable billing period label from the
// plan's duration.
func (p Plan) BillingLabel() string {
	switch p.DurationDays {
	case 7:
		return "Per Week"
	case 14:
		return "Per 2 Weeks"
	case 30:
		return "Per Month"
	case 90:
		return "Per Quarter"
	case 180:
		return "Per 6 Months"
	case 365:
		return "Per Year"
	default:
		return "Per Period"
	}
}

// PlanSource loads the plan catalog into the service.
type PlanSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// validatePlans catches catalog misconfiguration at startup instead of at
// checkout time.
func validatePlans(plans map[string]Plan) error {
	for planID, plan := range plans {
		if plan.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, plan.ID))
		}
		if plan.DurationDays < 0 || plan.YearlyDurationDays < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has a negative duration", planID))
		}
		if plan.Price.Amount < 0 || plan.YearlyPrice.Amount < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has a negative price", planID))
		}
	}
	return nil
}
