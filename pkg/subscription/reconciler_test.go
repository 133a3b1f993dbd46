package subscription_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmaster/billing/pkg/subscription"
)

// memStore is an in-memory Store with the same atomicity contract as the
// PostgreSQL implementation, for exercising the reconciler without a
// database.
type memStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*subscription.Subscription
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uuid.UUID]*subscription.Subscription)}
}

func (m *memStore) FindByRemoteID(ctx context.Context, remoteID string) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.RemoteID == remoteID && remoteID != "" {
			cp := *row
			return &cp, nil
		}
	}
	return nil, subscription.ErrSubscriptionNotFound
}

func (m *memStore) FindCurrentForAccount(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *subscription.Subscription
	better := func(candidate, incumbent *subscription.Subscription) bool {
		if incumbent == nil {
			return true
		}
		if candidate.Status.IsNonTerminal() != incumbent.Status.IsNonTerminal() {
			return candidate.Status.IsNonTerminal()
		}
		return candidate.CreatedAt.After(incumbent.CreatedAt)
	}
	for _, row := range m.rows {
		if row.AccountID == accountID && better(row, current) {
			current = row
		}
	}
	if current == nil {
		return nil, subscription.ErrSubscriptionNotFound
	}
	cp := *current
	return &cp, nil
}

func (m *memStore) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []subscription.Subscription
	for _, row := range m.rows {
		if row.AccountID == accountID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) HasEverHadFreeTrial(ctx context.Context, accountID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.AccountID == accountID && row.Kind == subscription.KindFree {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpsertByRemoteID(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	if sub.RemoteID == "" {
		return nil, subscription.ErrNoRemoteBacking
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.RemoteID == sub.RemoteID {
			updated := *sub
			updated.ID = row.ID
			updated.CreatedAt = row.CreatedAt
			m.rows[row.ID] = &updated
			if updated.Status.IsNonTerminal() {
				m.terminateSiblingsLocked(updated.AccountID, updated.ID, updated.UpdatedAt)
			}
			cp := updated
			return &cp, nil
		}
	}

	inserted := *sub
	if inserted.ID == uuid.Nil {
		inserted.ID = uuid.New()
	}
	m.rows[inserted.ID] = &inserted
	m.terminateSiblingsLocked(inserted.AccountID, inserted.ID, inserted.UpdatedAt)
	cp := inserted
	return &cp, nil
}

func (m *memStore) CreateLocal(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub.Kind == subscription.KindFree {
		for _, row := range m.rows {
			if row.AccountID == sub.AccountID && row.Kind == subscription.KindFree {
				return nil, subscription.ErrTrialAlreadyUsed
			}
		}
	}

	inserted := *sub
	if inserted.ID == uuid.Nil {
		inserted.ID = uuid.New()
	}
	m.rows[inserted.ID] = &inserted
	m.terminateSiblingsLocked(inserted.AccountID, inserted.ID, inserted.CreatedAt)
	cp := inserted
	return &cp, nil
}

func (m *memStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[sub.ID]; !ok {
		return subscription.ErrSubscriptionNotFound
	}
	cp := *sub
	m.rows[sub.ID] = &cp
	return nil
}

func (m *memStore) ListMissingPeriodEnd(ctx context.Context, limit int) ([]subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []subscription.Subscription
	for _, row := range m.rows {
		if row.RemoteID == "" || !row.Status.IsNonTerminal() {
			continue
		}
		if row.CurrentPeriodEnd == nil || row.PeriodEndEstimated {
			out = append(out, *row)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) terminateSiblingsLocked(accountID, keepID uuid.UUID, at time.Time) {
	for _, row := range m.rows {
		if row.AccountID == accountID && row.ID != keepID && row.Status.IsNonTerminal() {
			row.Status = subscription.StatusCanceled
			end := at
			row.GraceEndsAt = &end
			row.UpdatedAt = at
		}
	}
}

func testClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestReconciler_Merge_CreatesFromSnapshot(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	accountID := uuid.New()
	periodEnd := now.AddDate(0, 1, 0)

	got, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:         "sub_123",
		RemoteCustomerID: "ctm_1",
		AccountID:        accountID,
		PlanID:           "pro",
		PriceID:          "pri_monthly",
		Status:           subscription.StatusActive,
		Frequency:        subscription.FrequencyMonthly,
		CurrentPeriodEnd: &periodEnd,
		ObservedAt:       now,
	})
	require.NoError(t, err)

	assert.Equal(t, accountID, got.AccountID)
	assert.Equal(t, "sub_123", got.RemoteID)
	assert.Equal(t, subscription.KindPaid, got.Kind)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.Equal(t, periodEnd, *got.CurrentPeriodEnd)
	assert.False(t, got.PeriodEndEstimated)
	require.NotNil(t, got.StartsAt)
	assert.Equal(t, now, *got.StartsAt) // defaulted to merge time
}

func TestReconciler_Merge_IsIdempotent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	periodEnd := now.AddDate(0, 1, 0)
	snap := subscription.Snapshot{
		RemoteID:         "sub_123",
		AccountID:        uuid.New(),
		PlanID:           "pro",
		Status:           subscription.StatusActive,
		CurrentPeriodEnd: &periodEnd,
		ObservedAt:       now,
	}

	first, err := rec.Merge(context.Background(), snap)
	require.NoError(t, err)
	second, err := rec.Merge(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, *first.CurrentPeriodEnd, *second.CurrentPeriodEnd)
	assert.Equal(t, *first.StartsAt, *second.StartsAt)
}

func TestReconciler_Merge_HealsPermanentFields(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	accountID := uuid.New()

	// First observation is partial: no plan, no customer reference.
	_, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_123",
		AccountID:  accountID,
		Status:     subscription.StatusActive,
		ObservedAt: now,
	})
	require.NoError(t, err)

	// Second observation fills the gaps.
	got, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:         "sub_123",
		RemoteCustomerID: "ctm_1",
		PlanID:           "pro",
		PriceID:          "pri_monthly",
		Status:           subscription.StatusActive,
		ObservedAt:       now,
	})
	require.NoError(t, err)

	assert.Equal(t, accountID, got.AccountID, "owner survives a snapshot without one")
	assert.Equal(t, "pro", got.PlanID, "missing plan is healed")
	assert.Equal(t, "ctm_1", got.RemoteCustomerID)
	assert.Equal(t, "pri_monthly", got.RemotePriceID)
}

func TestReconciler_Merge_PermanentFieldsAreNotClobbered(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	started := now.AddDate(0, -2, 0)
	_, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_123",
		AccountID:  uuid.New(),
		PlanID:     "pro",
		Status:     subscription.StatusActive,
		StartsAt:   &started,
		ObservedAt: now,
	})
	require.NoError(t, err)

	got, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_123",
		Status:     subscription.StatusActive,
		ObservedAt: now,
	})
	require.NoError(t, err)

	assert.Equal(t, "pro", got.PlanID)
	assert.Equal(t, started, *got.StartsAt)
}

func TestReconciler_Merge_DynamicFieldsFollowLatestObservation(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	accountID := uuid.New()
	_, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_123",
		AccountID:  accountID,
		Status:     subscription.StatusActive,
		ObservedAt: now,
	})
	require.NoError(t, err)

	graceEnd := now.AddDate(0, 0, 14)
	got, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:    "sub_123",
		Status:      subscription.StatusCanceled,
		GraceEndsAt: &graceEnd,
		ObservedAt:  now,
	})
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusCanceled, got.Status)
	assert.Equal(t, graceEnd, *got.GraceEndsAt)
}

func TestReconciler_Merge_PeriodEndEstimation(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("missing period end is estimated from the interval", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
			subscription.WithReconcilerClock(testClock(now)))

		got, err := rec.Merge(context.Background(), subscription.Snapshot{
			RemoteID:      "sub_123",
			AccountID:     uuid.New(),
			Status:        subscription.StatusActive,
			IntervalUnit:  subscription.IntervalYear,
			IntervalCount: 1,
			ObservedAt:    now,
		})
		require.NoError(t, err)

		assert.True(t, got.PeriodEndEstimated)
		assert.Equal(t, now.AddDate(1, 0, 0), *got.CurrentPeriodEnd)
	})

	t.Run("confirmed date is never degraded to an estimate", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
			subscription.WithReconcilerClock(testClock(now)))

		confirmed := now.AddDate(0, 1, 0)
		_, err := rec.Merge(context.Background(), subscription.Snapshot{
			RemoteID:         "sub_123",
			AccountID:        uuid.New(),
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: &confirmed,
			ObservedAt:       now,
		})
		require.NoError(t, err)

		got, err := rec.Merge(context.Background(), subscription.Snapshot{
			RemoteID:     "sub_123",
			Status:       subscription.StatusActive,
			IntervalUnit: subscription.IntervalMonth,
			ObservedAt:   now,
		})
		require.NoError(t, err)

		assert.False(t, got.PeriodEndEstimated)
		assert.Equal(t, confirmed, *got.CurrentPeriodEnd)
	})

	t.Run("estimate is replaced once the provider confirms", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
			subscription.WithReconcilerClock(testClock(now)))

		_, err := rec.Merge(context.Background(), subscription.Snapshot{
			RemoteID:     "sub_123",
			AccountID:    uuid.New(),
			Status:       subscription.StatusActive,
			IntervalUnit: subscription.IntervalMonth,
			ObservedAt:   now,
		})
		require.NoError(t, err)

		confirmed := now.AddDate(0, 1, 2)
		got, err := rec.Merge(context.Background(), subscription.Snapshot{
			RemoteID:         "sub_123",
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: &confirmed,
			ObservedAt:       now,
		})
		require.NoError(t, err)

		assert.False(t, got.PeriodEndEstimated)
		assert.Equal(t, confirmed, *got.CurrentPeriodEnd)
	})
}

func TestReconciler_Merge_TrialConvertsToPaid(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	trialEnd := now.AddDate(0, 0, 14)
	created, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:    "sub_123",
		AccountID:   uuid.New(),
		Status:      subscription.StatusTrialing,
		TrialEndsAt: &trialEnd,
		ObservedAt:  now,
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.KindTrial, created.Kind)

	converted, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_123",
		Status:     subscription.StatusActive,
		ObservedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.KindPaid, converted.Kind)
}

func TestReconciler_Merge_TerminatesSiblingsOnCreate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	accountID := uuid.New()
	_, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_old",
		AccountID:  accountID,
		Status:     subscription.StatusActive,
		ObservedAt: now,
	})
	require.NoError(t, err)

	_, err = rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_new",
		AccountID:  accountID,
		Status:     subscription.StatusActive,
		ObservedAt: now,
	})
	require.NoError(t, err)

	old, err := store.FindByRemoteID(context.Background(), "sub_old")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, old.Status, "previous subscription is terminated")

	current, err := store.FindCurrentForAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, "sub_new", current.RemoteID)
}

func TestReconciler_Merge_ConcurrentCreationsLeaveOneActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	accountID := uuid.New()

	var wg sync.WaitGroup
	for _, remoteID := range []string{"sub_a", "sub_b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rec.Merge(context.Background(), subscription.Snapshot{
				RemoteID:   remoteID,
				AccountID:  accountID,
				Status:     subscription.StatusActive,
				ObservedAt: now,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := store.ListForAccount(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	live := 0
	for _, row := range rows {
		if row.Status.IsNonTerminal() {
			live++
		}
	}
	assert.Equal(t, 1, live, "concurrent creations must leave exactly one live row")
}

func TestReconciler_Merge_ReactivationTerminatesNewerSibling(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	accountID := uuid.New()

	// sub_old exists and was canceled when sub_new took over.
	ended := now.AddDate(0, -1, 0)
	_, err := rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:    "sub_old",
		AccountID:   accountID,
		Status:      subscription.StatusCanceled,
		GraceEndsAt: &ended,
		ObservedAt:  now,
	})
	require.NoError(t, err)

	_, err = rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_new",
		AccountID:  accountID,
		Status:     subscription.StatusActive,
		ObservedAt: now,
	})
	require.NoError(t, err)

	// The provider reactivates sub_old; that is an update, not an insert, but
	// it must still displace the other live row.
	_, err = rec.Merge(context.Background(), subscription.Snapshot{
		RemoteID:   "sub_old",
		Status:     subscription.StatusActive,
		ObservedAt: now,
	})
	require.NoError(t, err)

	newer, err := store.FindByRemoteID(context.Background(), "sub_new")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, newer.Status)

	current, err := store.FindCurrentForAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, "sub_old", current.RemoteID)
}

func TestReconciler_Merge_RejectsInvalidSnapshots(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	t.Run("missing remote id", func(t *testing.T) {
		t.Parallel()
		_, err := rec.Merge(context.Background(), subscription.Snapshot{
			AccountID:  uuid.New(),
			Status:     subscription.StatusActive,
			ObservedAt: now,
		})
		assert.ErrorIs(t, err, subscription.ErrInvalidSnapshot)
	})

	t.Run("unattributable creation", func(t *testing.T) {
		t.Parallel()
		_, err := rec.Merge(context.Background(), subscription.Snapshot{
			RemoteID:   "sub_orphan",
			Status:     subscription.StatusActive,
			ObservedAt: now,
		})
		assert.ErrorIs(t, err, subscription.ErrInvalidSnapshot)
	})
}

func TestReconciler_Merge_ConcurrentReplaysConverge(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	rec := subscription.NewReconciler(store, subscription.NoopViewCache{},
		subscription.WithReconcilerClock(testClock(now)))

	accountID := uuid.New()
	periodEnd := now.AddDate(0, 1, 0)
	snap := subscription.Snapshot{
		RemoteID:         "sub_123",
		AccountID:        accountID,
		PlanID:           "pro",
		Status:           subscription.StatusActive,
		CurrentPeriodEnd: &periodEnd,
		ObservedAt:       now,
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rec.Merge(context.Background(), snap)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := store.ListForAccount(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, rows, 1, "replays must not create duplicate rows")
	assert.Equal(t, subscription.StatusActive, rows[0].Status)
}
