package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/go-chi/chi/v5"
)

type CheckoutAPIMock struct {
	attempt *domain.CheckoutAttempt
	err     error

	lastRequest  *domain.CheckoutRequest
	lastOwner    string
	lastID       string
	lastResult   domain.ConfirmationResult
	lastDeadline time.Time
}

func (m *CheckoutAPIMock) Begin(ctx context.Context, request *domain.CheckoutRequest) (*domain.CheckoutAttempt, error) {
	m.lastRequest = request
	m.lastDeadline, _ = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	return m.attempt, nil
}

func (m *CheckoutAPIMock) Confirm(_ context.Context, ownerID, checkoutID string, result domain.ConfirmationResult) (*domain.CheckoutAttempt, error) {
	m.lastOwner, m.lastID, m.lastResult = ownerID, checkoutID, result
	if m.err != nil {
		return nil, m.err
	}
	return m.attempt, nil
}

func (m *CheckoutAPIMock) GetAttempt(_ context.Context, ownerID, checkoutID string) (*domain.CheckoutAttempt, error) {
	m.lastOwner, m.lastID = ownerID, checkoutID
	if m.err != nil {
		return nil, m.err
	}
	return m.attempt, nil
}

type CartAPIMock struct {
	items     []domain.CartItem
	added     *domain.CartItem
	err       error
	lastAdded domain.CartItem
	deleted   []string
}

func (m *CartAPIMock) Items(context.Context, string) ([]domain.CartItem, error) {
	return m.items, m.err
}

func (m *CartAPIMock) AddItem(_ context.Context, item domain.CartItem) (*domain.CartItem, error) {
	m.lastAdded = item
	if m.err != nil {
		return nil, m.err
	}
	return m.added, nil
}

func (m *CartAPIMock) DeleteItem(_ context.Context, _ string, itemID string) error {
	m.deleted = append(m.deleted, itemID)
	return m.err
}

func withOwner(r *http.Request) *http.Request {
	return r.WithContext(WithOwnerID(r.Context(), "user-1"))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
