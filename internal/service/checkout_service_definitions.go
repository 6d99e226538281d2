package service

import (
	"context"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/materializer"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/retry"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Begin(ctx context.Context, request *domain.CheckoutRequest) (*domain.CheckoutAttempt, error)
	Confirm(ctx context.Context, ownerID, checkoutID string, result domain.ConfirmationResult) (*domain.CheckoutAttempt, error)
	Checkout(ctx context.Context, request *domain.CheckoutRequest, confirmer PaymentConfirmer) (*domain.CheckoutAttempt, error)
	GetAttempt(ctx context.Context, ownerID, checkoutID string) (*domain.CheckoutAttempt, error)
	Reconcile(ctx context.Context, checkoutID string) (*domain.CheckoutAttempt, error)
	ListReconciliationCandidates(ctx context.Context, limit int) ([]*domain.CheckoutAttempt, error)
}

// PaymentConfirmer presents a client secret to the payment confirmation surface and reports its outcome.
// An error means the outcome is unknown, not that payment was declined.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, clientSecret string) (domain.ConfirmationResult, error)
}

type Materializer interface {
	Materialize(ctx context.Context, req materializer.Request) (*materializer.Result, error)
}

type Repository interface {
	r.AttemptStore
	GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error)
}

type CheckoutServiceImpl struct {
	repo         Repository
	issuer       *IssuerHandler
	cart         *CartHandler
	materializer Materializer
	log          *zap.Logger

	currency       string
	addressMin     int
	addressMax     int
	issuerRetry    retry.Policy
	stuckAfter     time.Duration
	maxReconciles  int
	persistTimeout time.Duration
}

type Option func(*CheckoutServiceImpl)

func WithCurrency(currency string) Option {
	return func(s *CheckoutServiceImpl) { s.currency = currency }
}

func WithAddressBounds(minLen, maxLen int) Option {
	return func(s *CheckoutServiceImpl) {
		s.addressMin = minLen
		s.addressMax = maxLen
	}
}

func WithIssuerRetry(p retry.Policy) Option {
	return func(s *CheckoutServiceImpl) { s.issuerRetry = p }
}

// WithRecovery sets how long an attempt must sit idle before recovery picks it up
// and how many reconcile runs an attempt gets.
func WithRecovery(stuckAfter time.Duration, maxReconciles int) Option {
	return func(s *CheckoutServiceImpl) {
		s.stuckAfter = stuckAfter
		s.maxReconciles = maxReconciles
	}
}

// WithPersistTimeout bounds state writes that must land after the caller's context is gone.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *CheckoutServiceImpl) { s.persistTimeout = d }
}

func NewCheckoutService(repo Repository, issuer *IssuerHandler, cart *CartHandler, m Materializer, log *zap.Logger, opts ...Option) *CheckoutServiceImpl {
	s := &CheckoutServiceImpl{
		repo:           repo,
		issuer:         issuer,
		cart:           cart,
		materializer:   m,
		log:            log,
		currency:       "usd",
		addressMin:     3,
		addressMax:     255,
		issuerRetry:    retry.Policy{MaxRetries: 2, InitialInterval: 200 * time.Millisecond},
		stuckAfter:     2 * time.Minute,
		maxReconciles:  5,
		persistTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
