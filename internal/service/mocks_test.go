package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	cartrepo "github.com/fjod/go_cart/storefront/internal/cart/repository"
	"github.com/fjod/go_cart/storefront/internal/materializer"
	pi "github.com/fjod/go_cart/storefront/internal/paymentintent"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/retry"
	"go.uber.org/zap"
)

// MockRepository is an in-memory attempt, order and outbox store
type MockRepository struct {
	mu       sync.Mutex
	attempts map[string]*domain.CheckoutAttempt
	orders   map[string]*domain.Order // by checkout id
	lines    map[string]domain.OrderLine
	events   []*r.OutboxEvent

	GetByKeyErr    error
	CreateOrderErr error
	CompleteErr    error
	lastIdle       time.Time
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		attempts: map[string]*domain.CheckoutAttempt{},
		orders:   map[string]*domain.Order{},
		lines:    map[string]domain.OrderLine{},
	}
}

func (m *MockRepository) CreateAttempt(ctx context.Context, a *domain.CheckoutAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.OwnerID == a.OwnerID && existing.IdempotencyKey == a.IdempotencyKey {
			return r.ErrDuplicateIdempotencyKey
		}
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *MockRepository) GetAttempt(_ context.Context, id string) (*domain.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, r.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockRepository) GetAttemptByIdempotencyKey(_ context.Context, ownerID, key string) (*domain.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetByKeyErr != nil {
		return nil, m.GetByKeyErr
	}
	for _, a := range m.attempts {
		if a.OwnerID == ownerID && a.IdempotencyKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, r.ErrIdempotencyKeyNotFound
}

func (m *MockRepository) ListAttempts(_ context.Context, _ r.AttemptFilter) ([]*domain.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CheckoutAttempt
	for _, a := range m.attempts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

// update applies fn when the attempt is still in from. Like a database driver it refuses a done context.
func (m *MockRepository) update(ctx context.Context, id string, from domain.CheckoutStatus, fn func(a *domain.CheckoutAttempt)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.Status != from {
		return r.ErrStaleAttempt
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MockRepository) UpdateAttemptStatus(ctx context.Context, id string, from, to domain.CheckoutStatus) error {
	return m.update(ctx, id, from, func(a *domain.CheckoutAttempt) { a.Status = to })
}

func (m *MockRepository) SetIntent(ctx context.Context, id string, intentID, secret string) error {
	return m.update(ctx, id, domain.CheckoutStatusAwaitingIntent, func(a *domain.CheckoutAttempt) {
		a.Status = domain.CheckoutStatusAwaitingConfirmation
		a.PaymentIntentID = intentID
		a.ClientSecret = secret
	})
}

func (m *MockRepository) RetryIntent(ctx context.Context, id string) error {
	m.mu.Lock()
	a, ok := m.attempts[id]
	reopenable := ok && domain.CanRetryIntent(a.Status, a.FailureReason)
	m.mu.Unlock()
	if !reopenable {
		return r.ErrStaleAttempt
	}
	return m.update(ctx, id, domain.CheckoutStatusFailed, func(a *domain.CheckoutAttempt) {
		a.Status = domain.CheckoutStatusAwaitingIntent
		a.FailureReason, a.FailureCode, a.FailureMessage = domain.FailureNone, "", ""
	})
}

func (m *MockRepository) FailAttempt(ctx context.Context, id string, from domain.CheckoutStatus, f r.Failure, event *r.OutboxEvent) error {
	err := m.update(ctx, id, from, func(a *domain.CheckoutAttempt) {
		a.Status = domain.CheckoutStatusFailed
		a.FailureReason, a.FailureCode, a.FailureMessage = f.Reason, f.Code, f.Message
	})
	if err == nil && event != nil {
		m.addEvent(event)
	}
	return err
}

func (m *MockRepository) CompleteAttempt(ctx context.Context, id string, from domain.CheckoutStatus, orderID string, event *r.OutboxEvent) error {
	if m.CompleteErr != nil {
		return m.CompleteErr
	}
	err := m.update(ctx, id, from, func(a *domain.CheckoutAttempt) {
		a.Status = domain.CheckoutStatusCompleted
		a.OrderID = &orderID
	})
	if err == nil && event != nil {
		m.addEvent(event)
	}
	return err
}

func (m *MockRepository) StartReconcile(ctx context.Context, id string, from domain.CheckoutStatus) error {
	return m.update(ctx, id, from, func(a *domain.CheckoutAttempt) {
		a.Status = domain.CheckoutStatusMaterializing
		a.FailureReason, a.FailureCode, a.FailureMessage = domain.FailureNone, "", ""
		a.ReconcileCount++
	})
}

func (m *MockRepository) ListReconciliationCandidates(_ context.Context, idleSince time.Time, maxReconciles int, _ int) ([]*domain.CheckoutAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastIdle = idleSince
	var out []*domain.CheckoutAttempt
	for _, a := range m.attempts {
		if a.UpdatedAt.Before(idleSince) && a.ReconcileCount < maxReconciles && domain.CanReconcile(a.Status, a.FailureReason) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRepository) addEvent(e *r.OutboxEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
}

func (m *MockRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateOrderErr != nil {
		return m.CreateOrderErr
	}
	if _, ok := m.orders[order.CheckoutID]; ok {
		return r.ErrDuplicateCheckout
	}
	cp := *order
	m.orders[order.CheckoutID] = &cp
	return nil
}

func (m *MockRepository) GetOrderByCheckoutID(_ context.Context, checkoutID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[checkoutID]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockRepository) CreateOrderLine(_ context.Context, line *domain.OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[line.OrderID+"/"+line.CartItemID] = *line
	return nil
}

func (m *MockRepository) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MockRepository) linesFor(orderID string) []domain.OrderLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderLine
	for _, l := range m.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out
}

func (m *MockRepository) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

func (m *MockRepository) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// MockCart is an in-memory cart store
type MockCart struct {
	mu      sync.Mutex
	items   []domain.CartItem
	ReadErr error
}

func (c *MockCart) Snapshot(_ context.Context, ownerID string) ([]domain.CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	var out []domain.CartItem
	for _, it := range c.items {
		if it.OwnerID == ownerID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (c *MockCart) DeleteItem(_ context.Context, ownerID, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, it := range c.items {
		if it.ID == itemID && it.OwnerID == ownerID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return nil
		}
	}
	return cartrepo.ErrItemNotFound
}

func (c *MockCart) set(items ...domain.CartItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
}

func (c *MockCart) all() []domain.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.CartItem(nil), c.items...)
}

// MockIssuer records every request and replays Errs in order before succeeding.
// Intents it reports on are in State, which defaults to succeeded.
type MockIssuer struct {
	mu       sync.Mutex
	Requests []pi.IssueIntentRequest
	Errs     []error
	Secret   string
	// Block makes IssueIntent wait for the caller's context to end.
	Block bool

	State          pi.IntentState
	DeclineCode    string
	DeclineMessage string
	StatusErr      error
	StatusRequests []string
}

func (m *MockIssuer) IssueIntent(ctx context.Context, req *pi.IssueIntentRequest) (*pi.IssueIntentResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, *req)
	block := m.Block
	var err error
	if len(m.Errs) > 0 {
		err = m.Errs[0]
		m.Errs = m.Errs[1:]
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &pi.IssueIntentResponse{IntentID: "pi_" + req.IdempotencyKey, ClientSecret: m.Secret}, nil
}

func (m *MockIssuer) IntentStatus(_ context.Context, req *pi.IntentStatusRequest) (*pi.IntentStatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusRequests = append(m.StatusRequests, req.IntentID)
	if m.StatusErr != nil {
		return nil, m.StatusErr
	}
	if req.IntentID == "" {
		return nil, pi.ErrIntentNotFound
	}
	state := m.State
	if state == "" {
		state = pi.IntentSucceeded
	}
	return &pi.IntentStatusResponse{
		IntentID:       req.IntentID,
		State:          state,
		DeclineCode:    m.DeclineCode,
		DeclineMessage: m.DeclineMessage,
	}, nil
}

func (m *MockIssuer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func (m *MockIssuer) set(fn func(m *MockIssuer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

type confirmerFunc func(ctx context.Context, clientSecret string) (domain.ConfirmationResult, error)

func (f confirmerFunc) Confirm(ctx context.Context, clientSecret string) (domain.ConfirmationResult, error) {
	return f(ctx, clientSecret)
}

func confirmWith(result domain.ConfirmationResult) PaymentConfirmer {
	return confirmerFunc(func(context.Context, string) (domain.ConfirmationResult, error) {
		return result, nil
	})
}

var errConfirmUnreachable = errors.New("confirmation surface unreachable")

// newTestCheckoutService creates a fully wired CheckoutService for testing
func newTestCheckoutService(repo *MockRepository, cart *MockCart, issuer *MockIssuer) *CheckoutServiceImpl {
	m := materializer.New(repo, cart, zap.NewNop(),
		materializer.WithTimeout(time.Second),
		materializer.WithCreateRetry(retry.Policy{MaxRetries: 1, InitialInterval: time.Millisecond}))

	return NewCheckoutService(repo,
		NewIssuerHandler(issuer, time.Second),
		NewCartHandler(cart, time.Second),
		m,
		zap.NewNop(),
		WithCurrency("usd"),
		WithAddressBounds(3, 255),
		WithIssuerRetry(retry.Policy{MaxRetries: 2, InitialInterval: time.Millisecond}),
		WithRecovery(time.Minute, 3),
		WithPersistTimeout(time.Second),
	)
}
