package eventqueue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmaster/billing/pkg/eventqueue"
	"github.com/clubmaster/billing/pkg/subscription"
)

func startWorker(t *testing.T, repo eventqueue.WorkerRepository, processor eventqueue.Processor, opts ...eventqueue.WorkerOption) *eventqueue.Worker {
	t.Helper()

	opts = append([]eventqueue.WorkerOption{
		eventqueue.WithPullInterval(5 * time.Millisecond),
		eventqueue.WithBackoff([]time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}),
	}, opts...)

	worker, err := eventqueue.NewWorker(repo, processor, opts...)
	require.NoError(t, err)
	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(func() { _ = worker.Stop() })
	return worker
}

func ingest(t *testing.T, repo *eventqueue.MemoryRepository, ev *subscription.ProviderEvent) {
	t.Helper()
	ingestor, err := eventqueue.NewIngestor(repo)
	require.NoError(t, err)
	require.NoError(t, ingestor.Ingest(context.Background(), ev))
}

func TestWorker_DeliversEvent(t *testing.T) {
	t.Parallel()

	repo := eventqueue.NewMemoryRepository()
	delivered := make(chan *subscription.ProviderEvent, 1)

	startWorker(t, repo, func(ctx context.Context, ev *subscription.ProviderEvent) error {
		delivered <- ev
		return nil
	})

	ingest(t, repo, &subscription.ProviderEvent{
		Type:          subscription.EventSubscriptionUpdated,
		ProviderEvent: "subscription.updated",
		RemoteID:      "sub_123",
	})

	select {
	case ev := <-delivered:
		assert.Equal(t, "sub_123", ev.RemoteID)
		assert.Equal(t, subscription.EventSubscriptionUpdated, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	require.Eventually(t, func() bool {
		dead, err := repo.ListDead(context.Background(), 10)
		return err == nil && len(dead) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_RetriesThenBuries(t *testing.T) {
	t.Parallel()

	repo := eventqueue.NewMemoryRepository()
	var attempts atomic.Int32

	startWorker(t, repo, func(ctx context.Context, ev *subscription.ProviderEvent) error {
		attempts.Add(1)
		return errors.New("downstream unavailable")
	})

	ingest(t, repo, &subscription.ProviderEvent{
		Type:          subscription.EventSubscriptionCreated,
		ProviderEvent: "subscription.created",
		RemoteID:      "sub_123",
	})

	require.Eventually(t, func() bool {
		dead, err := repo.ListDead(context.Background(), 10)
		return err == nil && len(dead) == 1
	}, 5*time.Second, 10*time.Millisecond, "event must land in the dead letter queue")

	assert.Equal(t, int32(eventqueue.DefaultMaxAttempts), attempts.Load(), "every attempt must be used before burying")

	dead, err := repo.ListDead(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "subscription.created", dead[0].EventType)
	assert.Equal(t, eventqueue.DefaultMaxAttempts, dead[0].Attempts)
	assert.Contains(t, dead[0].Error, "downstream unavailable")
}

func TestWorker_RecoversFromProcessorPanic(t *testing.T) {
	t.Parallel()

	repo := eventqueue.NewMemoryRepository()

	startWorker(t, repo, func(ctx context.Context, ev *subscription.ProviderEvent) error {
		panic("boom")
	})

	ingest(t, repo, &subscription.ProviderEvent{
		Type:          subscription.EventSubscriptionUpdated,
		ProviderEvent: "subscription.updated",
	})

	require.Eventually(t, func() bool {
		dead, err := repo.ListDead(context.Background(), 10)
		return err == nil && len(dead) == 1
	}, 5*time.Second, 10*time.Millisecond, "panics count as failed attempts")
}

func TestWorker_BuriesUndecodablePayload(t *testing.T) {
	t.Parallel()

	repo := eventqueue.NewMemoryRepository()
	var called atomic.Bool

	startWorker(t, repo, func(ctx context.Context, ev *subscription.ProviderEvent) error {
		called.Store(true)
		return nil
	})

	require.NoError(t, repo.Enqueue(context.Background(), &eventqueue.Event{
		ID:            uuid.New(),
		EventType:     "garbage",
		Payload:       []byte("{not json"),
		Status:        eventqueue.StatusPending,
		MaxAttempts:   eventqueue.DefaultMaxAttempts,
		NextAttemptAt: time.Now().UTC(),
		ReceivedAt:    time.Now().UTC(),
	}))

	require.Eventually(t, func() bool {
		dead, err := repo.ListDead(context.Background(), 10)
		return err == nil && len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, called.Load(), "the processor never sees an undecodable payload")
}

func TestWorker_RequeueDeadEvent(t *testing.T) {
	t.Parallel()

	repo := eventqueue.NewMemoryRepository()
	var fail atomic.Bool
	fail.Store(true)
	delivered := make(chan struct{}, 1)

	worker := startWorker(t, repo, func(ctx context.Context, ev *subscription.ProviderEvent) error {
		if fail.Load() {
			return errors.New("still broken")
		}
		delivered <- struct{}{}
		return nil
	})

	ingest(t, repo, &subscription.ProviderEvent{
		Type:          subscription.EventSubscriptionUpdated,
		ProviderEvent: "subscription.updated",
		RemoteID:      "sub_123",
	})

	require.Eventually(t, func() bool {
		dead, err := repo.ListDead(context.Background(), 10)
		return err == nil && len(dead) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Operator fixes the fault and requeues.
	fail.Store(false)
	dead, err := worker.DeadEvents(context.Background(), 10)
	require.NoError(t, err)
	require.NoError(t, worker.RequeueDeadEvent(context.Background(), dead[0].ID))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("requeued event was not delivered")
	}
}

func TestBackoffFor(t *testing.T) {
	t.Parallel()

	schedule := []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

	assert.Equal(t, time.Minute, eventqueue.BackoffFor(schedule, 1))
	assert.Equal(t, 5*time.Minute, eventqueue.BackoffFor(schedule, 2))
	assert.Equal(t, 15*time.Minute, eventqueue.BackoffFor(schedule, 3))
	assert.Equal(t, 15*time.Minute, eventqueue.BackoffFor(schedule, 7), "past the schedule stays at the last step")
	assert.Equal(t, time.Minute, eventqueue.BackoffFor(nil, 1), "nil schedule uses the default")
}

func TestIngestor_Ingest(t *testing.T) {
	t.Parallel()

	repo := eventqueue.NewMemoryRepository()
	ingestor, err := eventqueue.NewIngestor(repo)
	require.NoError(t, err)

	require.NoError(t, ingestor.Ingest(context.Background(), &subscription.ProviderEvent{
		Type:          subscription.EventCheckoutCompleted,
		ProviderEvent: "transaction.completed",
		RemoteID:      "sub_123",
	}))

	ev, err := repo.Claim(context.Background(), uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "transaction.completed", ev.EventType)
	assert.Equal(t, eventqueue.DefaultMaxAttempts, ev.MaxAttempts)
	assert.Zero(t, ev.Attempts)

	// Nil events are dropped silently.
	require.NoError(t, ingestor.Ingest(context.Background(), nil))
	_, err = repo.Claim(context.Background(), uuid.New(), time.Minute)
	assert.ErrorIs(t, err, eventqueue.ErrNoEventToClaim)
}
