package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/service"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string               `json:"error"`
	Code    string               `json:"code,omitempty"`
	Details string               `json:"details,omitempty"`
	Fields  []service.FieldError `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts checkout errors to HTTP responses. A materialization
// failure gets its own code so the client can tell the shopper payment went through.
func handleServiceError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  service.ErrValidation.Error(),
			Code:   "validation_failed",
			Fields: validationErr.Fields,
		})
		return
	}

	var declineErr *service.DeclineError
	if errors.As(err, &declineErr) {
		respondJSON(w, http.StatusPaymentRequired, ErrorResponse{
			Error:   declineErr.Message,
			Code:    "payment_declined",
			Details: declineErr.Code,
		})
		return
	}

	var httpStatus int
	var code string

	switch {
	case errors.Is(err, service.ErrEmptyCart):
		httpStatus = http.StatusConflict
		code = "empty_cart"
	case errors.Is(err, service.ErrPaymentSetup):
		httpStatus = http.StatusServiceUnavailable
		code = "payment_setup_failed"
	case errors.Is(err, service.ErrPaymentUnverified):
		httpStatus = http.StatusServiceUnavailable
		code = "payment_unverified"
	case errors.Is(err, service.ErrPaymentPending):
		httpStatus = http.StatusConflict
		code = "payment_pending"
	case errors.Is(err, service.ErrMaterialization):
		httpStatus = http.StatusInternalServerError
		code = "materialization_error"
	case errors.Is(err, service.ErrAttemptNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, service.IllegalTransitionError), errors.Is(err, service.ErrNotReconcilable):
		httpStatus = http.StatusConflict
		code = "illegal_transition"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}
