package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store backed by PostgreSQL. Writes that must terminate
// sibling subscriptions run inside one transaction so a crash or a concurrent
// writer can never leave two live rows for one account.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL-backed subscription store.
// Panics if pool is nil.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

const subscriptionColumns = `id, account_id, plan_id, kind, status, frequency,
	COALESCE(remote_id, ''), remote_customer_id, remote_price_id,
	starts_at, current_period_end, period_end_estimated, trial_ends_at, grace_ends_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.AccountID, &s.PlanID, &s.Kind, &s.Status, &s.Frequency,
		&s.RemoteID, &s.RemoteCustomerID, &s.RemotePriceID,
		&s.StartsAt, &s.CurrentPeriodEnd, &s.PeriodEndEstimated, &s.TrialEndsAt, &s.GraceEndsAt,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// nullableRemoteID maps the empty remote id of local subscriptions to NULL so
// the partial unique index only ever constrains provider-backed rows.
func nullableRemoteID(remoteID string) *string {
	if remoteID == "" {
		return nil
	}
	return &remoteID
}

func (s *PGStore) FindByRemoteID(ctx context.Context, remoteID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE remote_id = $1`, remoteID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("find by remote id: %w", err))
	}
	return sub, nil
}

func (s *PGStore) FindCurrentForAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	// Non-terminal rows win over terminal ones; ties break on recency. The
	// terminal fallback lets callers tell "expired" apart from "never
	// subscribed".
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1
		ORDER BY (status IN ('active', 'trialing')) DESC, created_at DESC
		LIMIT 1`, accountID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("find current for account: %w", err))
	}
	return sub, nil
}

func (s *PGStore) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("list for account: %w", err))
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("scan subscription: %w", err))
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return subs, nil
}

func (s *PGStore) HasEverHadFreeTrial(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM subscriptions WHERE account_id = $1 AND kind = 'free')`,
		accountID).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, fmt.Errorf("check free trial history: %w", err))
	}
	return exists, nil
}

func (s *PGStore) UpsertByRemoteID(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if sub.RemoteID == "" {
		return nil, ErrNoRemoteBacking
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("begin upsert: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// xmax = 0 distinguishes a fresh insert from a conflict update without a
	// second round trip.
	row := tx.QueryRow(ctx, `
		INSERT INTO subscriptions (id, account_id, plan_id, kind, status, frequency,
			remote_id, remote_customer_id, remote_price_id,
			starts_at, current_period_end, period_end_estimated, trial_ends_at, grace_ends_at,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
		ON CONFLICT (remote_id) WHERE remote_id IS NOT NULL DO UPDATE SET
			account_id = EXCLUDED.account_id,
			plan_id = EXCLUDED.plan_id,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			frequency = EXCLUDED.frequency,
			remote_customer_id = EXCLUDED.remote_customer_id,
			remote_price_id = EXCLUDED.remote_price_id,
			starts_at = EXCLUDED.starts_at,
			current_period_end = EXCLUDED.current_period_end,
			period_end_estimated = EXCLUDED.period_end_estimated,
			trial_ends_at = EXCLUDED.trial_ends_at,
			grace_ends_at = EXCLUDED.grace_ends_at,
			updated_at = now()
		RETURNING `+subscriptionColumns+`, (xmax = 0) AS inserted`,
		sub.ID, sub.AccountID, sub.PlanID, sub.Kind, sub.Status, sub.Frequency,
		nullableRemoteID(sub.RemoteID), sub.RemoteCustomerID, sub.RemotePriceID,
		sub.StartsAt, sub.CurrentPeriodEnd, sub.PeriodEndEstimated, sub.TrialEndsAt, sub.GraceEndsAt)

	var stored Subscription
	var inserted bool
	err = row.Scan(&stored.ID, &stored.AccountID, &stored.PlanID, &stored.Kind, &stored.Status, &stored.Frequency,
		&stored.RemoteID, &stored.RemoteCustomerID, &stored.RemotePriceID,
		&stored.StartsAt, &stored.CurrentPeriodEnd, &stored.PeriodEndEstimated, &stored.TrialEndsAt, &stored.GraceEndsAt,
		&stored.CreatedAt, &stored.UpdatedAt, &inserted)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("upsert by remote id: %w", err))
	}

	// Inserts always terminate siblings; so does an update that lands the row
	// in a live status, which covers a provider-side reactivation of an old
	// subscription while a newer one is still active.
	if inserted || stored.Status.IsNonTerminal() {
		if err := terminateSiblings(ctx, tx, stored.AccountID, stored.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("commit upsert: %w", err))
	}
	return &stored, nil
}

func (s *PGStore) CreateLocal(ctx context.Context, sub *Subscription) (*Subscription, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("begin create: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if sub.Kind == KindFree {
		// Re-check under the transaction; the service-level check races with
		// concurrent signups.
		var used bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM subscriptions WHERE account_id = $1 AND kind = 'free')`,
			sub.AccountID).Scan(&used)
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("check free trial history: %w", err))
		}
		if used {
			return nil, ErrTrialAlreadyUsed
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO subscriptions (id, account_id, plan_id, kind, status, frequency,
			remote_id, remote_customer_id, remote_price_id,
			starts_at, current_period_end, period_end_estimated, trial_ends_at, grace_ends_at,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULL,'','',$7,$8,$9,$10,$11,now(),now())
		RETURNING `+subscriptionColumns,
		sub.ID, sub.AccountID, sub.PlanID, sub.Kind, sub.Status, sub.Frequency,
		sub.StartsAt, sub.CurrentPeriodEnd, sub.PeriodEndEstimated, sub.TrialEndsAt, sub.GraceEndsAt)

	stored, err := scanSubscription(row)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("create local subscription: %w", err))
	}

	if err := terminateSiblings(ctx, tx, stored.AccountID, stored.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("commit create: %w", err))
	}
	return stored, nil
}

func (s *PGStore) Update(ctx context.Context, sub *Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			status = $2,
			current_period_end = $3,
			period_end_estimated = $4,
			trial_ends_at = $5,
			grace_ends_at = $6,
			plan_id = $7,
			frequency = $8,
			updated_at = now()
		WHERE id = $1`,
		sub.ID, sub.Status, sub.CurrentPeriodEnd, sub.PeriodEndEstimated,
		sub.TrialEndsAt, sub.GraceEndsAt, sub.PlanID, sub.Frequency)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, fmt.Errorf("update subscription: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PGStore) ListMissingPeriodEnd(ctx context.Context, limit int) ([]Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE remote_id IS NOT NULL
		  AND status IN ('active', 'trialing')
		  AND (current_period_end IS NULL OR period_end_estimated)
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("list missing period end: %w", err))
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, fmt.Errorf("scan subscription: %w", err))
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return subs, nil
}

// terminateSiblings cancels every other live subscription of the account in
// the enclosing transaction of a create. The grace end is set to the moment
// of termination so the old row reads as immediately lapsed.
func terminateSiblings(ctx context.Context, tx pgx.Tx, accountID, keepID uuid.UUID) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'canceled', grace_ends_at = $3, updated_at = now()
		WHERE account_id = $1 AND id <> $2 AND status IN ('active', 'trialing')`,
		accountID, keepID, now)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, fmt.Errorf("terminate sibling subscriptions: %w", err))
	}
	return nil
}

// PGPlanSource loads the plan catalog from the plans table, for deployments
// that manage the catalog through the database instead of a YAML file.
type PGPlanSource struct {
	pool *pgxpool.Pool
}

func NewPGPlanSource(pool *pgxpool.Pool) *PGPlanSource {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PGPlanSource{pool: pool}
}

func (s *PGPlanSource) Load(ctx context.Context) (map[string]Plan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, tagline, price, yearly_price, currency,
			duration_days, yearly_duration_days,
			remote_monthly_price_id, remote_yearly_price_id, enabled
		FROM plans`)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	defer rows.Close()

	plans := make(map[string]Plan)
	for rows.Next() {
		var p Plan
		var currency string
		err := rows.Scan(&p.ID, &p.Name, &p.Tagline, &p.Price.Amount, &p.YearlyPrice.Amount, &currency,
			&p.DurationDays, &p.YearlyDurationDays,
			&p.RemoteMonthlyPriceID, &p.RemoteYearlyPriceID, &p.Enabled)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}
		p.Price.Currency = currency
		p.YearlyPrice.Currency = currency
		plans[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return plans, nil
}
