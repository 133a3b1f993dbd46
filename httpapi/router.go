package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/clubmaster/billing/pkg/eventqueue"
	"github.com/clubmaster/billing/pkg/httpserver"
	"github.com/clubmaster/billing/pkg/subscription"
)

// Ingestor accepts a verified provider event for durable delivery.
type Ingestor interface {
	Ingest(ctx context.Context, ev *subscription.ProviderEvent) error
}

// DeadLetterOperator exposes the queue's dead-letter records for operators.
type DeadLetterOperator interface {
	DeadEvents(ctx context.Context, limit int) ([]eventqueue.DeadEvent, error)
	RequeueDeadEvent(ctx context.Context, deadID uuid.UUID) error
}

// RouterOptions wires the billing router's collaborators. Service, Parser
// and Ingestor are required; DeadLetters and health probes are optional.
type RouterOptions struct {
	Service     subscription.Service
	Parser      subscription.EventParser
	Ingestor    Ingestor
	DeadLetters DeadLetterOperator
	Logger      *slog.Logger

	// Healthchecks run on GET /healthz; with none registered the endpoint
	// acts as a plain liveness probe.
	Healthchecks []func(context.Context) error
}

// Router assembles the billing HTTP surface:
//
//	POST /webhooks/billing                        provider notifications
//	GET  /plans                                   enabled plan catalog
//	GET  /accounts/{accountID}/subscription
//	GET  /accounts/{accountID}/access
//	GET  /accounts/{accountID}/summary
//	GET  /accounts/{accountID}/invoices
//	GET  /accounts/{accountID}/membership
//	POST /accounts/{accountID}/subscribe          free plans
//	POST /accounts/{accountID}/checkout           paid plans
//	POST /accounts/{accountID}/cancel
//	POST /accounts/{accountID}/resume
//	POST /accounts/{accountID}/swap
//	GET  /operator/events/dead                    dead-letter queue
//	POST /operator/events/dead/{deadID}/requeue
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil {
		panic("httpapi: Service is required")
	}
	if opts.Parser == nil {
		panic("httpapi: EventParser is required")
	}
	if opts.Ingestor == nil {
		panic("httpapi: Ingestor is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &handlers{
		svc:      opts.Service,
		parser:   opts.Parser,
		ingestor: opts.Ingestor,
		dlq:      opts.DeadLetters,
		log:      opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(opts.Logger, opts.Healthchecks...))

	r.Post("/webhooks/billing", h.webhook)

	r.Get("/plans", h.listPlans)

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Use(h.withAccountID)

		r.Get("/subscription", h.getSubscription)
		r.Get("/access", h.getAccess)
		r.Get("/summary", h.getSummary)
		r.Get("/invoices", h.getInvoices)
		r.Get("/membership", h.getMembership)

		r.Post("/subscribe", h.subscribeFree)
		r.Post("/checkout", h.checkout)
		r.Post("/cancel", h.cancel)
		r.Post("/resume", h.resume)
		r.Post("/swap", h.swapPlan)
	})

	if opts.DeadLetters != nil {
		r.Route("/operator/events", func(r chi.Router) {
			r.Get("/dead", h.listDeadEvents)
			r.Post("/dead/{deadID}/requeue", h.requeueDeadEvent)
		})
	}

	return r
}

type ctxKey string

const ctxKeyAccountID ctxKey = "account_id"

// withAccountID parses the accountID path parameter once for the whole
// account subtree.
func (h *handlers) withAccountID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "accountID"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, JSONResponse{
				Error: &ErrorDetail{Code: "invalid_account_id", Message: "account id must be a UUID"},
			})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAccountID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(ctxKeyAccountID).(uuid.UUID)
	return id
}
