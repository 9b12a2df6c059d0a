package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"staffledger/auth"
	"staffledger/credit"
	"staffledger/discount"
	"staffledger/posting"
	"staffledger/rates"
)

func (h *Handler) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Required  *int64 `json:"required_credits,omitempty"`
	Available *int64 `json:"available_credits,omitempty"`
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, errorBody{Error: msg})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.errorResponse(w, r, http.StatusUnprocessableEntity, validationErrors.Error())
		return
	}
	h.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (h *Handler) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal error", "method", r.Method, "path", r.URL.Path, "error", err)
	h.errorResponse(w, r, http.StatusInternalServerError, "internal server error")
}

// serviceError maps every sentinel the services return onto an HTTP status.
// Anything unrecognized is a 500 and gets logged.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficientCredits *posting.InsufficientCreditsError
	if errors.As(err, &insufficientCredits) {
		h.writeJSON(w, r, http.StatusPaymentRequired, errorBody{
			Error:     insufficientCredits.Error(),
			Required:  &insufficientCredits.Required,
			Available: &insufficientCredits.Available,
		})
		return
	}
	var insufficientFunds *credit.InsufficientFundsError
	if errors.As(err, &insufficientFunds) {
		h.writeJSON(w, r, http.StatusPaymentRequired, errorBody{
			Error:     insufficientFunds.Error(),
			Required:  &insufficientFunds.Required,
			Available: &insufficientFunds.Available,
		})
		return
	}

	switch {
	case errors.Is(err, posting.ErrNotFound),
		errors.Is(err, credit.ErrAccountNotFound),
		errors.Is(err, rates.ErrEntryNotFound),
		errors.Is(err, discount.ErrCodeNotFound),
		errors.Is(err, discount.ErrUseNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		h.errorResponse(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, posting.ErrNotOwned):
		h.errorResponse(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, posting.ErrInvalidTransition):
		h.errorResponse(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, discount.ErrDuplicateCode):
		h.errorResponse(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.errorResponse(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		h.errorResponse(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, posting.ErrNoFields),
		errors.Is(err, discount.ErrBadCodeFormat),
		errors.Is(err, discount.ErrBadPercent),
		errors.Is(err, credit.ErrBadAmountSign),
		errors.Is(err, rates.ErrNoActiveRate):
		h.errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		h.internalServerError(w, r, err)
	}
}
