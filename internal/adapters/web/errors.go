package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"fulfillment-engine/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	// Business-rule errors carry actionable data for the caller.
	Remaining *int64 `json:"remaining,omitempty"`
	Available *int64 `json:"available,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorData(w, r, errorResponse{Error: message, Code: code}, status)
}

func writeErrorData(w http.ResponseWriter, r *http.Request, resp errorResponse, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp.RequestID = requestIDFromContext(r.Context())
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps the engine's error taxonomy to HTTP. Business-rule
// errors are expected outcomes (409 with data); state errors indicate misuse
// (422); everything else is opaque.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *core.InsufficientStockError
	if errors.As(err, &insufficient) {
		writeErrorData(w, r, errorResponse{
			Error:     err.Error(),
			Code:      "INSUFFICIENT_STOCK",
			Available: &insufficient.Available,
		}, http.StatusConflict)
		return
	}

	var capacity *core.CapacityExceededError
	if errors.As(err, &capacity) {
		writeErrorData(w, r, errorResponse{
			Error:     err.Error(),
			Code:      "CAPACITY_EXCEEDED",
			Remaining: &capacity.Remaining,
		}, http.StatusConflict)
		return
	}

	var transition *core.InvalidTransitionError
	var resState *core.InvalidReservationStateError
	if errors.As(err, &transition) || errors.As(err, &resState) {
		writeError(w, r, err.Error(), "INVALID_STATE", http.StatusUnprocessableEntity)
		return
	}

	if errors.Is(err, core.ErrCurrencyMismatch) {
		writeError(w, r, err.Error(), "CURRENCY_MISMATCH", http.StatusBadRequest)
		return
	}

	if core.IsRetryable(err) {
		writeError(w, r, "operation timed out waiting for a lock, retry", "RETRY", http.StatusServiceUnavailable)
		return
	}

	writeError(w, r, "internal error", "INTERNAL_ERROR", http.StatusInternalServerError)
}
