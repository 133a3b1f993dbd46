package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/clubmaster/billing/pkg/subscription"
)

type handlers struct {
	svc      subscription.Service
	parser   subscription.EventParser
	ingestor Ingestor
	dlq      DeadLetterOperator
	log      *slog.Logger
}

func (h *handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.Plans(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, plans)
}

func (h *handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.GetSubscription(r.Context(), accountID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, sub)
}

func (h *handlers) getAccess(w http.ResponseWriter, r *http.Request) {
	decision, err := h.svc.GetAccessDecision(r.Context(), accountID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, decision)
}

func (h *handlers) getSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GetBillingSummary(r.Context(), accountID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, summary)
}

func (h *handlers) getInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.GetInvoices(r.Context(), accountID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, invoices)
}

func (h *handlers) getMembership(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.GetMembershipHistory(r.Context(), accountID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, history)
}

type subscribeRequest struct {
	PlanID    string `json:"plan_id"`
	Frequency string `json:"frequency"`
}

func (h *handlers) subscribeFree(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sub, err := h.svc.SubscribeFree(r.Context(), accountID(r), req.PlanID, subscription.BillingFrequency(req.Frequency))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, sub)
}

type checkoutRequest struct {
	PlanID     string `json:"plan_id"`
	Frequency  string `json:"frequency"`
	Email      string `json:"email,omitempty"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

func (h *handlers) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	handle, err := h.svc.RequestPaidCheckout(r.Context(), accountID(r), req.PlanID,
		subscription.BillingFrequency(req.Frequency), subscription.CheckoutOptions{
			Email:      req.Email,
			SuccessURL: req.SuccessURL,
			CancelURL:  req.CancelURL,
		})
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, handle)
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), accountID(r)); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Resume(r.Context(), accountID(r)); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type swapRequest struct {
	PlanID    string `json:"plan_id"`
	Frequency string `json:"frequency"`
}

func (h *handlers) swapPlan(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.svc.SwapPlan(r.Context(), accountID(r), req.PlanID, subscription.BillingFrequency(req.Frequency)); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, JSONResponse{
			Error: &ErrorDetail{Code: "invalid_body", Message: "request body must be valid JSON"},
		})
		return false
	}
	return true
}
