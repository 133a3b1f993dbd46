package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultDeadEventLimit = 50

// listDeadEvents surfaces the dead-letter queue so operators can inspect
// events that exhausted their delivery attempts.
func (h *handlers) listDeadEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondJSON(w, http.StatusBadRequest, JSONResponse{
				Error: &ErrorDetail{Code: "invalid_limit", Message: "limit must be a positive integer"},
			})
			return
		}
		limit = n
	}

	dead, err := h.dlq.DeadEvents(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, dead)
}

// requeueDeadEvent puts a dead-letter record back on the queue with a fresh
// attempt budget.
func (h *handlers) requeueDeadEvent(w http.ResponseWriter, r *http.Request) {
	deadID, err := uuid.Parse(chi.URLParam(r, "deadID"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, JSONResponse{
			Error: &ErrorDetail{Code: "invalid_dead_id", Message: "dead event id must be a UUID"},
		})
		return
	}

	if err := h.dlq.RequeueDeadEvent(r.Context(), deadID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
