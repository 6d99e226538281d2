package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutAPI is the part of the checkout service the shopper-facing surface drives.
type CheckoutAPI interface {
	Begin(ctx context.Context, request *domain.CheckoutRequest) (*domain.CheckoutAttempt, error)
	Confirm(ctx context.Context, ownerID, checkoutID string, result domain.ConfirmationResult) (*domain.CheckoutAttempt, error)
	GetAttempt(ctx context.Context, ownerID, checkoutID string) (*domain.CheckoutAttempt, error)
}

type CheckoutHandler struct {
	checkout CheckoutAPI
	timeout  time.Duration
	log      *zap.Logger
}

func NewCheckoutHandler(checkout CheckoutAPI, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
		log:      log,
	}
}

type InitiateCheckoutRequestDTO struct {
	IdempotencyKey string                 `json:"idempotency_key"`
	Shipping       domain.ShippingDetails `json:"shipping"`
	Total          decimal.Decimal        `json:"total"`
}

type ConfirmCheckoutRequestDTO struct {
	Outcome string `json:"outcome"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type CheckoutResponseDTO struct {
	CheckoutID     string  `json:"checkout_id"`
	Status         string  `json:"status"`
	ClientSecret   string  `json:"client_secret,omitempty"`
	AmountMinor    int64   `json:"amount_minor"`
	Currency       string  `json:"currency"`
	OrderID        *string `json:"order_id,omitempty"`
	FailureReason  string  `json:"failure_reason,omitempty"`
	FailureCode    string  `json:"failure_code,omitempty"`
	FailureMessage string  `json:"failure_message,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ownerID := getOwnerIDFromContext(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req InitiateCheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	attempt, err := h.checkout.Begin(ctx, &domain.CheckoutRequest{
		OwnerID:        ownerID,
		IdempotencyKey: key,
		Shipping:       req.Shipping,
		Total:          req.Total,
	})
	if err != nil {
		h.requestLog(r).Info("checkout submission rejected", zap.String("owner_id", ownerID), zap.Error(err))
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toCheckoutResponse(attempt))
}

// GET /api/v1/checkout/{checkout_id}
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ownerID := getOwnerIDFromContext(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	checkoutID := chi.URLParam(r, "checkout_id")
	if checkoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_checkout_id", "checkout_id is required")
		return
	}

	attempt, err := h.checkout.GetAttempt(ctx, ownerID, checkoutID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toCheckoutResponse(attempt))
}

// POST /api/v1/checkout/{checkout_id}/confirmation
func (h *CheckoutHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ownerID := getOwnerIDFromContext(r.Context())
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	checkoutID := chi.URLParam(r, "checkout_id")
	if checkoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_checkout_id", "checkout_id is required")
		return
	}

	var req ConfirmCheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	outcome := domain.ConfirmationOutcome(req.Outcome)
	switch outcome {
	case domain.ConfirmationSucceeded, domain.ConfirmationDeclined, domain.ConfirmationCancelled:
	default:
		respondError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be succeeded, declined or cancelled")
		return
	}

	attempt, err := h.checkout.Confirm(ctx, ownerID, checkoutID, domain.ConfirmationResult{
		Outcome: outcome,
		Code:    req.Code,
		Message: req.Message,
	})
	if err != nil {
		h.requestLog(r).Warn("checkout confirmation failed",
			zap.String("owner_id", ownerID),
			zap.String("checkout_id", checkoutID),
			zap.Error(err))
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toCheckoutResponse(attempt))
}

func (h *CheckoutHandler) requestLog(r *http.Request) *zap.Logger {
	return logger.WithContext(r.Context(), h.log).With(zap.String("request_id", getRequestID(r.Context())))
}

func toCheckoutResponse(a *domain.CheckoutAttempt) CheckoutResponseDTO {
	resp := CheckoutResponseDTO{
		CheckoutID:     a.ID,
		Status:         a.Status.String(),
		AmountMinor:    a.AmountMinor,
		Currency:       a.Currency,
		OrderID:        a.OrderID,
		FailureReason:  string(a.FailureReason),
		FailureCode:    a.FailureCode,
		FailureMessage: a.FailureMessage,
	}
	// The secret is only useful while the confirmation surface is open.
	if a.Status == domain.CheckoutStatusAwaitingConfirmation {
		resp.ClientSecret = a.ClientSecret
	}
	return resp
}
