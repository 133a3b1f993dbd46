package eventqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository implements both queue repository interfaces in memory,
// for tests and local development without PostgreSQL.
type MemoryRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID]*Event
	dead   map[uuid.UUID]*DeadEvent
}

// NewMemoryRepository creates an empty in-memory queue.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[uuid.UUID]*Event),
		dead:   make(map[uuid.UUID]*DeadEvent),
	}
}

func (m *MemoryRepository) Enqueue(ctx context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *MemoryRepository) Claim(ctx context.Context, workerID uuid.UUID, lockFor time.Duration) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var due *Event
	for _, ev := range m.events {
		if ev.Status != StatusPending || ev.NextAttemptAt.After(now) {
			continue
		}
		if ev.LockedUntil != nil && ev.LockedUntil.After(now) {
			continue
		}
		if due == nil || ev.NextAttemptAt.Before(due.NextAttemptAt) {
			due = ev
		}
	}
	if due == nil {
		return nil, ErrNoEventToClaim
	}

	until := now.Add(lockFor)
	due.Status = StatusProcessing
	due.LockedUntil = &until
	due.LockedBy = &workerID
	cp := *due
	return &cp, nil
}

func (m *MemoryRepository) MarkDelivered(ctx context.Context, eventID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	now := time.Now().UTC()
	ev.Status = StatusDelivered
	ev.DeliveredAt = &now
	ev.LockedUntil = nil
	ev.LockedBy = nil
	return nil
}

func (m *MemoryRepository) RecordFailure(ctx context.Context, eventID uuid.UUID, errMsg string, nextAttemptAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	ev.Status = StatusPending
	ev.Attempts++
	ev.LastError = &errMsg
	ev.NextAttemptAt = nextAttemptAt
	ev.LockedUntil = nil
	ev.LockedBy = nil
	return nil
}

func (m *MemoryRepository) Bury(ctx context.Context, eventID uuid.UUID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	dead := &DeadEvent{
		ID:         uuid.New(),
		EventID:    ev.ID,
		EventType:  ev.EventType,
		Payload:    ev.Payload,
		Error:      errMsg,
		Attempts:   ev.Attempts + 1,
		ReceivedAt: ev.ReceivedAt,
		FailedAt:   time.Now().UTC(),
	}
	m.dead[dead.ID] = dead
	delete(m.events, eventID)
	return nil
}

func (m *MemoryRepository) ListDead(ctx context.Context, limit int) ([]DeadEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeadEvent, 0, len(m.dead))
	for _, d := range m.dead {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) RequeueDead(ctx context.Context, deadID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dead[deadID]
	if !ok {
		return ErrEventNotFound
	}
	m.events[d.EventID] = &Event{
		ID:            d.EventID,
		EventType:     d.EventType,
		Payload:       d.Payload,
		Status:        StatusPending,
		MaxAttempts:   DefaultMaxAttempts,
		NextAttemptAt: time.Now().UTC(),
		ReceivedAt:    d.ReceivedAt,
	}
	delete(m.dead, deadID)
	return nil
}
