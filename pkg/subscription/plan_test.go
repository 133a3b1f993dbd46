package subscription_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmaster/billing/pkg/subscription"
)

func TestPlan_PriceFor(t *testing.T) {
	t.Parallel()

	plan := subscription.Plan{
		Price:       subscription.Money{Amount: 2900, Currency: "GBP"},
		YearlyPrice: subscription.Money{Amount: 29000, Currency: "GBP"},
	}

	assert.Equal(t, int64(2900), plan.PriceFor(subscription.FrequencyMonthly).Amount)
	assert.Equal(t, int64(29000), plan.PriceFor(subscription.FrequencyYearly).Amount)

	// No distinct yearly price falls back to monthly.
	monthlyOnly := subscription.Plan{Price: subscription.Money{Amount: 500, Currency: "GBP"}}
	assert.Equal(t, int64(500), monthlyOnly.PriceFor(subscription.FrequencyYearly).Amount)
}

func TestPlan_DurationFor(t *testing.T) {
	t.Parallel()

	plan := subscription.Plan{DurationDays: 28, YearlyDurationDays: 360}
	assert.Equal(t, 28, plan.DurationFor(subscription.FrequencyMonthly))
	assert.Equal(t, 360, plan.DurationFor(subscription.FrequencyYearly))

	// Defaults when the catalog leaves durations unset.
	blank := subscription.Plan{}
	assert.Equal(t, 30, blank.DurationFor(subscription.FrequencyMonthly))
	assert.Equal(t, 365, blank.DurationFor(subscription.FrequencyYearly))
}

func TestPlan_RemotePriceFor(t *testing.T) {
	t.Parallel()

	plan := subscription.Plan{
		RemoteMonthlyPriceID: "pri_m",
		RemoteYearlyPriceID:  "pri_y",
	}
	assert.Equal(t, "pri_m", plan.RemotePriceFor(subscription.FrequencyMonthly))
	assert.Equal(t, "pri_y", plan.RemotePriceFor(subscription.FrequencyYearly))

	local := subscription.Plan{}
	assert.Empty(t, local.RemotePriceFor(subscription.FrequencyMonthly))
}

func TestPlan_IsFreeFor(t *testing.T) {
	t.Parallel()

	free := subscription.Plan{}
	assert.True(t, free.IsFreeFor(subscription.FrequencyMonthly))

	paid := subscription.Plan{Price: subscription.Money{Amount: 100, Currency: "GBP"}}
	assert.False(t, paid.IsFreeFor(subscription.FrequencyMonthly))
}

func TestPlan_BillingLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		days int
		want string
	}{
		{7, "Per Week"},
		{14, "Per 2 Weeks"},
		{30, "Per Month"},
		{90, "Per Quarter"},
		{180, "Per 6 Months"},
		{365, "Per Year"},
		{42, "Per Period"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subscription.Plan{DurationDays: tt.days}.BillingLabel())
	}
}

func TestYAMLSource_Load(t *testing.T) {
	t.Parallel()

	t.Run("loads a valid catalog", func(t *testing.T) {
		t.Parallel()
		path := writePlansFile(t, `
plans:
  - id: starter
    name: Starter
    price: {amount: 0, currency: GBP}
    duration_days: 30
    enabled: true
  - id: pro
    name: Pro
    price: {amount: 2900, currency: GBP}
    yearly_price: {amount: 29000, currency: GBP}
    duration_days: 30
    yearly_duration_days: 365
    remote_monthly_price_id: pri_pro_monthly
    remote_yearly_price_id: pri_pro_yearly
    enabled: true
`)

		plans, err := subscription.NewYAMLSource(path).Load(context.Background())
		require.NoError(t, err)
		require.Len(t, plans, 2)

		pro := plans["pro"]
		assert.Equal(t, "Pro", pro.Name)
		assert.Equal(t, int64(2900), pro.Price.Amount)
		assert.Equal(t, "pri_pro_yearly", pro.RemoteYearlyPriceID)
		assert.True(t, plans["starter"].IsFreeFor(subscription.FrequencyMonthly))
	})

	t.Run("rejects duplicate plan ids", func(t *testing.T) {
		t.Parallel()
		path := writePlansFile(t, `
plans:
  - id: pro
    name: Pro
  - id: pro
    name: Pro Again
`)

		_, err := subscription.NewYAMLSource(path).Load(context.Background())
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("rejects a plan without an id", func(t *testing.T) {
		t.Parallel()
		path := writePlansFile(t, `
plans:
  - name: Anonymous
`)

		_, err := subscription.NewYAMLSource(path).Load(context.Background())
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewYAMLSource("/nonexistent/plans.yaml").Load(context.Background())
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})
}

func TestStaticSource_IsolatesCallers(t *testing.T) {
	t.Parallel()

	src := subscription.NewStaticSource(map[string]subscription.Plan{
		"pro": {ID: "pro", Name: "Pro"},
	})

	first, err := src.Load(context.Background())
	require.NoError(t, err)

	// Mutating a loaded copy must not leak into later loads.
	first["pro"] = subscription.Plan{ID: "pro", Name: "Tampered"}
	delete(first, "pro")

	second, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Pro", second["pro"].Name)
}

func writePlansFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
