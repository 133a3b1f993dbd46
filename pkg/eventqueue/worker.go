package eventqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clubmaster/billing/pkg/subscription"
)

// WorkerRepository is the claim/ack side of the queue.
type WorkerRepository interface {
	// Claim atomically claims the next due event and locks it for lockFor.
	// Returns ErrNoEventToClaim when nothing is due.
	Claim(ctx context.Context, workerID uuid.UUID, lockFor time.Duration) (*Event, error)

	// MarkDelivered acknowledges successful processing.
	MarkDelivered(ctx context.Context, eventID uuid.UUID) error

	// RecordFailure stores the error, bumps the attempt counter and schedules
	// the next delivery.
	RecordFailure(ctx context.Context, eventID uuid.UUID, errMsg string, nextAttemptAt time.Time) error

	// Bury moves the event to the dead letter queue after its last attempt.
	Bury(ctx context.Context, eventID uuid.UUID, errMsg string) error

	// ListDead returns buried events for operator inspection, newest first.
	ListDead(ctx context.Context, limit int) ([]DeadEvent, error)

	// RequeueDead puts a buried event back on the queue with a fresh attempt
	// budget.
	RequeueDead(ctx context.Context, deadID uuid.UUID) error
}

// Processor consumes one decoded provider event. A nil return acknowledges
// the event; an error schedules a redelivery.
type Processor func(ctx context.Context, ev *subscription.ProviderEvent) error

// Worker pulls queued events and drives them through the processor with
// bounded retries. Failed events back off per the configured schedule and
// land in the dead letter queue once the attempt budget runs out.
type Worker struct {
	repo      WorkerRepository
	processor Processor
	workerID  uuid.UUID
	sem       chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	stopMu    sync.Mutex

	pullInterval   time.Duration
	attemptTimeout time.Duration
	backoff        []time.Duration
	logger         *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates an event queue worker.
func NewWorker(repo WorkerRepository, processor Processor, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if processor == nil {
		return nil, ErrProcessorNil
	}

	options := &workerOptions{
		pullInterval:   time.Second,
		attemptTimeout: DefaultAttemptTimeout,
		maxConcurrent:  4,
		backoff:        DefaultBackoff,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:           repo,
		processor:      processor,
		workerID:       uuid.New(),
		sem:            make(chan struct{}, options.maxConcurrent),
		pullInterval:   options.pullInterval,
		attemptTimeout: options.attemptTimeout,
		backoff:        options.backoff,
		logger:         options.logger,
	}, nil
}

// Start begins pulling events in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("event worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop drains in-flight events and shuts the worker down.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("event worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil {
						w.logger.Error("failed to process event",
							slog.String("worker_id", w.workerID.String()),
							slog.String("error", err.Error()))
					}
				}()
			default:
				// All slots busy, skip this tick.
			}
		}
	}
}

func (w *Worker) pullAndProcess() error {
	// The lock must outlive the attempt so a slow handler cannot be claimed
	// twice.
	ev, err := w.repo.Claim(w.ctx, w.workerID, w.attemptTimeout+30*time.Second)
	if err != nil {
		if errors.Is(err, ErrNoEventToClaim) {
			return nil
		}
		return fmt.Errorf("claim event: %w", err)
	}
	return w.process(ev)
}

func (w *Worker) process(ev *Event) (retErr error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in processor: %v", r)
			w.logger.Error("event processor panicked",
				slog.String("event_id", ev.ID.String()),
				slog.String("event_type", ev.EventType),
				slog.Any("panic", r))
			retErr = w.handleFailure(ev, retErr, time.Since(start))
		}
	}()

	var decoded subscription.ProviderEvent
	if err := json.Unmarshal(ev.Payload, &decoded); err != nil {
		// A payload that cannot decode will never decode; bury immediately.
		w.logger.Error("undecodable event payload, burying",
			slog.String("event_id", ev.ID.String()),
			slog.String("event_type", ev.EventType),
			slog.String("error", err.Error()))
		buryCtx, cancel := w.ackContext()
		defer cancel()
		if buryErr := w.repo.Bury(buryCtx, ev.ID, "undecodable payload: "+err.Error()); buryErr != nil {
			return fmt.Errorf("bury undecodable event %s: %w", ev.ID, buryErr)
		}
		return nil
	}

	// Detached from the worker lifecycle so shutdown lets the attempt finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.attemptTimeout)
	defer cancel()

	err := w.processor(ctx, &decoded)
	duration := time.Since(start)

	if err != nil {
		return w.handleFailure(ev, err, duration)
	}

	ackCtx, cancelAck := w.ackContext()
	defer cancelAck()
	if err := w.repo.MarkDelivered(ackCtx, ev.ID); err != nil {
		return fmt.Errorf("mark event %s delivered: %w", ev.ID, err)
	}
	w.logger.Info("event delivered",
		slog.String("event_id", ev.ID.String()),
		slog.String("event_type", ev.EventType),
		slog.Int("attempt", ev.Attempts+1),
		slog.Duration("duration", duration))
	return nil
}

// ackContext detaches queue acknowledgements from the worker lifecycle so a
// shutdown mid-attempt cannot turn a finished attempt into a redelivery.
func (w *Worker) ackContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (w *Worker) handleFailure(ev *Event, execErr error, duration time.Duration) error {
	attempt := ev.Attempts + 1
	w.logger.Error("event delivery failed",
		slog.String("event_id", ev.ID.String()),
		slog.String("event_type", ev.EventType),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", ev.MaxAttempts),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	ackCtx, cancel := w.ackContext()
	defer cancel()

	if attempt >= ev.MaxAttempts {
		if err := w.repo.Bury(ackCtx, ev.ID, execErr.Error()); err != nil {
			return fmt.Errorf("bury event %s after final attempt: %w", ev.ID, err)
		}
		w.logger.Warn("event moved to dead letter queue",
			slog.String("event_id", ev.ID.String()),
			slog.String("event_type", ev.EventType))
		return nil
	}

	next := time.Now().UTC().Add(BackoffFor(w.backoff, attempt))
	if err := w.repo.RecordFailure(ackCtx, ev.ID, execErr.Error(), next); err != nil {
		return fmt.Errorf("record failure for event %s: %w", ev.ID, err)
	}
	return nil
}

// DeadEvents lists buried events for operator tooling.
func (w *Worker) DeadEvents(ctx context.Context, limit int) ([]DeadEvent, error) {
	return w.repo.ListDead(ctx, limit)
}

// RequeueDeadEvent puts one buried event back on the queue.
func (w *Worker) RequeueDeadEvent(ctx context.Context, deadID uuid.UUID) error {
	return w.repo.RequeueDead(ctx, deadID)
}
