package eventqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clubmaster/billing/pkg/subscription"
)

// IngestorRepository is the write side of the queue.
type IngestorRepository interface {
	Enqueue(ctx context.Context, ev *Event) error
}

// Ingestor turns verified provider events into durably queued work. The
// webhook handler calls Ingest and immediately acknowledges the provider;
// everything after that point is the worker's problem.
type Ingestor struct {
	repo        IngestorRepository
	maxAttempts int
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithMaxAttempts overrides how many delivery attempts each event gets.
func WithMaxAttempts(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxAttempts = n
		}
	}
}

// NewIngestor creates an Ingestor.
func NewIngestor(repo IngestorRepository, opts ...IngestorOption) (*Ingestor, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	i := &Ingestor{repo: repo, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Ingest queues one provider event for at-least-once delivery.
func (i *Ingestor) Ingest(ctx context.Context, ev *subscription.ProviderEvent) error {
	if ev == nil {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Join(ErrPayloadMarshal, err)
	}

	now := time.Now().UTC()
	queued := &Event{
		ID:            uuid.New(),
		EventType:     ev.ProviderEvent,
		Payload:       payload,
		Status:        StatusPending,
		MaxAttempts:   i.maxAttempts,
		NextAttemptAt: now,
		ReceivedAt:    now,
	}
	if err := i.repo.Enqueue(ctx, queued); err != nil {
		return errors.Join(ErrEnqueueFailed, err)
	}
	return nil
}
