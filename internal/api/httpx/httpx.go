package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/velkovb/peerpay-backend/internal/models"
)

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// WriteDomainError maps the domain taxonomy to HTTP statuses. Callers get the
// structured condition that failed, never raw internal error text.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInconsistent):
		// Invariant violation: surfaced loudly for manual reconciliation.
		WriteError(w, http.StatusInternalServerError, "inconsistent", models.ErrInconsistent.Error(), nil)
	case errors.Is(err, models.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", models.ErrNotFound.Error(), nil)
	case errors.Is(err, models.ErrNoBudget):
		WriteError(w, http.StatusNotFound, "no_budget", models.ErrNoBudget.Error(), nil)
	case errors.Is(err, models.ErrInsufficientFunds):
		WriteError(w, http.StatusUnprocessableEntity, "insufficient_funds", models.ErrInsufficientFunds.Error(), nil)
	case errors.Is(err, models.ErrBudgetExceeded):
		WriteError(w, http.StatusUnprocessableEntity, "budget_exceeded", models.ErrBudgetExceeded.Error(), nil)
	case errors.Is(err, models.ErrInvalidCard):
		WriteError(w, http.StatusBadRequest, "invalid_card", models.ErrInvalidCard.Error(), nil)
	case errors.Is(err, models.ErrBankDeclined):
		WriteError(w, http.StatusPaymentRequired, "bank_declined", models.ErrBankDeclined.Error(), nil)
	case errors.Is(err, models.ErrInvalidAmount):
		WriteError(w, http.StatusBadRequest, "invalid_amount", models.ErrInvalidAmount.Error(), nil)
	case errors.Is(err, models.ErrSelfRequest):
		WriteError(w, http.StatusBadRequest, "self_request", models.ErrSelfRequest.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
