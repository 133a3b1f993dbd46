package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clubmaster/billing/pkg/eventqueue"
	"github.com/clubmaster/billing/pkg/subscription"
)

// JSONResponse is the envelope every endpoint renders.
type JSONResponse struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries a machine-readable code alongside the message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, JSONResponse{Data: data})
}

func respondError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	respondJSON(w, status, JSONResponse{Error: &ErrorDetail{Code: code, Message: err.Error()}})
}

// classify maps sentinel errors onto HTTP status codes. Unrecognized errors
// render as 500 without leaking internals into the code field.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, subscription.ErrPlanNotFound):
		return http.StatusNotFound, "plan_not_found"
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return http.StatusNotFound, "subscription_not_found"
	case errors.Is(err, subscription.ErrPlanDisabled):
		return http.StatusUnprocessableEntity, "plan_disabled"
	case errors.Is(err, subscription.ErrPlanNotFree):
		return http.StatusUnprocessableEntity, "plan_not_free"
	case errors.Is(err, subscription.ErrPlanNotPurchasable):
		return http.StatusUnprocessableEntity, "plan_not_purchasable"
	case errors.Is(err, subscription.ErrUnknownFrequency):
		return http.StatusBadRequest, "unknown_frequency"
	case errors.Is(err, subscription.ErrTrialAlreadyUsed):
		return http.StatusConflict, "trial_already_used"
	case errors.Is(err, subscription.ErrNotInGracePeriod):
		return http.StatusConflict, "not_in_grace_period"
	case errors.Is(err, subscription.ErrNoRemoteBacking):
		return http.StatusConflict, "no_remote_backing"
	case errors.Is(err, subscription.ErrGatewayUnavailable):
		return http.StatusBadGateway, "gateway_unavailable"
	case errors.Is(err, subscription.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, eventqueue.ErrEventNotFound):
		return http.StatusNotFound, "event_not_found"
	case errors.Is(err, eventqueue.ErrQueueUnavailable):
		return http.StatusServiceUnavailable, "queue_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
