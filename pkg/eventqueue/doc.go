// Package eventqueue provides durable, at-least-once delivery of billing
// provider events to the reconciliation engine.
//
// The webhook receiver verifies a notification, hands it to the Ingestor
// and acknowledges the provider immediately; the Worker pulls queued events
// and drives them through a Processor with bounded retries. Each event gets
// three delivery attempts with a rising backoff (one, five, then fifteen
// minutes) and a 120 second budget per attempt. Events that exhaust their
// attempts move to a dead letter queue where operators can inspect the raw
// payload, fix the underlying fault and requeue.
//
// Delivery is at-least-once: a crash between processing and acknowledgment
// redelivers the event. Processors must therefore be idempotent, which the
// reconciliation merge guarantees for subscription events.
//
//	repo := eventqueue.NewPGRepository(pool)
//
//	ingestor, _ := eventqueue.NewIngestor(repo)
//	worker, _ := eventqueue.NewWorker(repo, func(ctx context.Context, ev *subscription.ProviderEvent) error {
//		return svc.HandleProviderEvent(ctx, ev)
//	})
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(worker.Run(ctx))
//
// Claiming uses FOR UPDATE SKIP LOCKED, so several worker processes can
// share one queue without double-delivery inside the lock window.
package eventqueue
