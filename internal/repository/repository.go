package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/config"
)

var (
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
	ErrDuplicateIdempotencyKey = errors.New("owner already has a checkout attempt with this idempotency key")
	ErrAttemptNotFound         = errors.New("checkout attempt not found")
	ErrStaleAttempt            = errors.New("checkout attempt is no longer in the expected status")
	ErrDuplicateCheckout       = errors.New("order for this checkout already exists")
	ErrOrderNotFound           = errors.New("order not found")
)

type Credentials = config.Credentials

const (
	EventCheckoutCompleted             = "CheckoutCompleted"
	EventCheckoutMaterializationFailed = "CheckoutMaterializationFailed"
)

type OutboxEvent struct {
	ID          int64
	AggregateId string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Failure describes why an attempt moved to FAILED.
type Failure struct {
	Reason  domain.FailureReason
	Code    string
	Message string
}

type AttemptFilter struct {
	OwnerID string
	Status  domain.CheckoutStatus
	Limit   int
}

type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *domain.CheckoutAttempt) error
	GetAttempt(ctx context.Context, id string) (*domain.CheckoutAttempt, error)
	GetAttemptByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.CheckoutAttempt, error)
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]*domain.CheckoutAttempt, error)
	UpdateAttemptStatus(ctx context.Context, id string, from, to domain.CheckoutStatus) error
	SetIntent(ctx context.Context, id string, intentID, clientSecret string) error
	RetryIntent(ctx context.Context, id string) error
	FailAttempt(ctx context.Context, id string, from domain.CheckoutStatus, failure Failure, event *OutboxEvent) error
	CompleteAttempt(ctx context.Context, id string, from domain.CheckoutStatus, orderID string, event *OutboxEvent) error
	StartReconcile(ctx context.Context, id string, from domain.CheckoutStatus) error
	ListReconciliationCandidates(ctx context.Context, idleSince time.Time, maxReconciles int, limit int) ([]*domain.CheckoutAttempt, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error)
	CreateOrderLine(ctx context.Context, line *domain.OrderLine) error
	ListOrderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error)
}

type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type RepoInterface interface {
	Close() error
	RunMigrations(*Credentials) error
	AttemptStore
	OrderStore
	OutboxStore
}
