package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	pi "github.com/fjod/go_cart/storefront/internal/paymentintent"
)

type IntentIssuer interface {
	IssueIntent(ctx context.Context, req *pi.IssueIntentRequest) (*pi.IssueIntentResponse, error)
	IntentStatus(ctx context.Context, req *pi.IntentStatusRequest) (*pi.IntentStatusResponse, error)
}

type CartReader interface {
	Snapshot(ctx context.Context, ownerID string) ([]domain.CartItem, error)
}

type IssuerHandler struct {
	issuer  IntentIssuer
	timeout time.Duration
}

func NewIssuerHandler(issuer IntentIssuer, timeout time.Duration) *IssuerHandler {
	return &IssuerHandler{
		issuer:  issuer,
		timeout: timeout,
	}
}

func (h *IssuerHandler) issue(ctx context.Context, req *pi.IssueIntentRequest) (*pi.IssueIntentResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp, err := h.issuer.IssueIntent(callCtx, req)
	if err != nil {
		return nil, unavailableOnDeadline(err)
	}
	return resp, nil
}

func (h *IssuerHandler) status(ctx context.Context, intentID string) (*pi.IntentStatusResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp, err := h.issuer.IntentStatus(callCtx, &pi.IntentStatusRequest{IntentID: intentID})
	if err != nil {
		return nil, unavailableOnDeadline(err)
	}
	return resp, nil
}

// unavailableOnDeadline reports a call that ran out of time, ours or the caller's, as an unavailable gateway.
func unavailableOnDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, pi.ErrGatewayUnavailable) {
		return fmt.Errorf("%w: %w", pi.ErrGatewayUnavailable, err)
	}
	return err
}

type CartHandler struct {
	cart    CartReader
	timeout time.Duration
}

func NewCartHandler(cart CartReader, timeout time.Duration) *CartHandler {
	return &CartHandler{
		cart:    cart,
		timeout: timeout,
	}
}

func (h *CartHandler) snapshot(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	items, err := h.cart.Snapshot(callCtx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return items, nil
}
