package eventqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements IngestorRepository and WorkerRepository on
// PostgreSQL. Claiming uses FOR UPDATE SKIP LOCKED so any number of worker
// processes can pull from the same queue without coordination.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository creates a PostgreSQL-backed event queue repository.
// Panics if pool is nil.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	if pool == nil {
		panic("eventqueue: pgx pool is required")
	}
	return &PGRepository{pool: pool}
}

const eventColumns = `id, event_type, payload, status, attempts, max_attempts,
	next_attempt_at, locked_until, locked_by, last_error, received_at, delivered_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var ev Event
	err := row.Scan(&ev.ID, &ev.EventType, &ev.Payload, &ev.Status, &ev.Attempts, &ev.MaxAttempts,
		&ev.NextAttemptAt, &ev.LockedUntil, &ev.LockedBy, &ev.LastError, &ev.ReceivedAt, &ev.DeliveredAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *PGRepository) Enqueue(ctx context.Context, ev *Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO billing_events (id, event_type, payload, status, attempts, max_attempts,
			next_attempt_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.EventType, ev.Payload, ev.Status, ev.Attempts, ev.MaxAttempts,
		ev.NextAttemptAt, ev.ReceivedAt)
	if err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("insert event: %w", err))
	}
	return nil
}

func (r *PGRepository) Claim(ctx context.Context, workerID uuid.UUID, lockFor time.Duration) (*Event, error) {
	row := r.pool.QueryRow(ctx, `
		WITH due AS (
			SELECT id FROM billing_events
			WHERE status = 'pending'
			  AND next_attempt_at <= now()
			  AND (locked_until IS NULL OR locked_until < now())
			ORDER BY next_attempt_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE billing_events e
		SET status = 'processing', locked_by = $1, locked_until = now() + $2
		FROM due
		WHERE e.id = due.id
		RETURNING `+prefixedEventColumns("e"), workerID, lockFor)

	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoEventToClaim
		}
		return nil, errors.Join(ErrQueueUnavailable, fmt.Errorf("claim event: %w", err))
	}
	return ev, nil
}

func (r *PGRepository) MarkDelivered(ctx context.Context, eventID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE billing_events
		SET status = 'delivered', delivered_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1`, eventID)
	if err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("mark delivered: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *PGRepository) RecordFailure(ctx context.Context, eventID uuid.UUID, errMsg string, nextAttemptAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE billing_events
		SET status = 'pending', attempts = attempts + 1, last_error = $2,
			next_attempt_at = $3, locked_until = NULL, locked_by = NULL
		WHERE id = $1`, eventID, errMsg, nextAttemptAt)
	if err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("record failure: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *PGRepository) Bury(ctx context.Context, eventID uuid.UUID, errMsg string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("begin bury: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		INSERT INTO billing_events_dead (id, event_id, event_type, payload, error, attempts, received_at, failed_at)
		SELECT gen_random_uuid(), id, event_type, payload, $2, attempts + 1, received_at, now()
		FROM billing_events WHERE id = $1`, eventID, errMsg)
	if err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("insert dead event: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM billing_events WHERE id = $1`, eventID); err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("delete buried event: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("commit bury: %w", err))
	}
	return nil
}

func (r *PGRepository) ListDead(ctx context.Context, limit int) ([]DeadEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, event_type, payload, error, attempts, received_at, failed_at
		FROM billing_events_dead
		ORDER BY failed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Join(ErrQueueUnavailable, fmt.Errorf("list dead events: %w", err))
	}
	defer rows.Close()

	var dead []DeadEvent
	for rows.Next() {
		var d DeadEvent
		err := rows.Scan(&d.ID, &d.EventID, &d.EventType, &d.Payload, &d.Error, &d.Attempts, &d.ReceivedAt, &d.FailedAt)
		if err != nil {
			return nil, errors.Join(ErrQueueUnavailable, fmt.Errorf("scan dead event: %w", err))
		}
		dead = append(dead, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrQueueUnavailable, err)
	}
	return dead, nil
}

func (r *PGRepository) RequeueDead(ctx context.Context, deadID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("begin requeue: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		INSERT INTO billing_events (id, event_type, payload, status, attempts, max_attempts,
			next_attempt_at, received_at)
		SELECT event_id, event_type, payload, 'pending', 0, $2, now(), received_at
		FROM billing_events_dead WHERE id = $1`, deadID, DefaultMaxAttempts)
	if err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("requeue dead event: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM billing_events_dead WHERE id = $1`, deadID); err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("delete requeued dead event: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrQueueUnavailable, fmt.Errorf("commit requeue: %w", err))
	}
	return nil
}

func prefixedEventColumns(alias string) string {
	return alias + `.id, ` + alias + `.event_type, ` + alias + `.payload, ` + alias + `.status, ` +
		alias + `.attempts, ` + alias + `.max_attempts, ` + alias + `.next_attempt_at, ` +
		alias + `.locked_until, ` + alias + `.locked_by, ` + alias + `.last_error, ` +
		alias + `.received_at, ` + alias + `.delivered_at`
}
