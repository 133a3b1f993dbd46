package httpapi

import (
	"errors"
	"net/http"

	"github.com/clubmaster/billing/pkg/subscription"
)

// webhook verifies the provider signature, normalizes the payload, and
// enqueues it for durable processing. The provider is acknowledged as soon
// as the event is persisted; delivery to the reconciler happens async with
// retries, so transient downstream failures never surface here.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	ev, err := h.parser.ParseEvent(r)
	if err != nil {
		if errors.Is(err, subscription.ErrWebhookVerificationFailed) {
			h.log.WarnContext(r.Context(), "webhook signature rejected", "error", err)
			respondJSON(w, http.StatusBadRequest, JSONResponse{
				Error: &ErrorDetail{Code: "invalid_signature", Message: "webhook signature verification failed"},
			})
			return
		}
		h.log.ErrorContext(r.Context(), "webhook payload unreadable", "error", err)
		respondJSON(w, http.StatusBadRequest, JSONResponse{
			Error: &ErrorDetail{Code: "invalid_payload", Message: "webhook payload could not be parsed"},
		})
		return
	}

	if err := h.ingestor.Ingest(r.Context(), ev); err != nil {
		// Not yet persisted, so a 5xx makes the provider redeliver.
		h.log.ErrorContext(r.Context(), "failed to enqueue provider event",
			"error", err, "event_type", ev.ProviderEvent)
		respondJSON(w, http.StatusInternalServerError, JSONResponse{
			Error: &ErrorDetail{Code: "enqueue_failed", Message: "event could not be accepted"},
		})
		return
	}

	w.WriteHeader(http.StatusOK)
}
