// Package httpapi exposes the billing engine over HTTP with chi.
//
// The router has three surfaces: the webhook receiver that verifies and
// enqueues provider notifications, per-account read and lifecycle endpoints
// backed by the subscription service, and operator endpoints over the event
// queue's dead letters.
//
//	err := httpapi.Serve(ctx, cfg, httpapi.RouterOptions{
//	    Service:     svc,
//	    Parser:      gateway,
//	    Ingestor:    ingestor,
//	    DeadLetters: worker,
//	    Logger:      log,
//	})
//
// Serve runs the router on a pkg/httpserver Server; hosts that need the
// handler alone can call Router and mount it themselves.
//
// Responses use a single JSON envelope: data on success, a code/message pair
// on failure. Sentinel errors from pkg/subscription and pkg/eventqueue map
// onto HTTP statuses in classify; anything unrecognized renders as 500.
//
// The webhook endpoint acknowledges the provider once the event is durably
// queued. A failed enqueue answers 5xx so the provider redelivers; everything
// after the queue is covered by worker retries and the dead-letter queue.
package httpapi
