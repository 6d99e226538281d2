package materializer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	cartrepo "github.com/fjod/go_cart/storefront/internal/cart/repository"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrCreateOrder = errors.New("create order")
	ErrReadCart    = errors.New("read cart")
	ErrWriteLines  = errors.New("write order lines")
)

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error)
	CreateOrderLine(ctx context.Context, line *domain.OrderLine) error
}

type CartStore interface {
	Snapshot(ctx context.Context, ownerID string) ([]domain.CartItem, error)
	DeleteItem(ctx context.Context, ownerID, itemID string) error
}

type Request struct {
	CheckoutID string
	OwnerID    string
	Shipping   domain.ShippingDetails
}

type Result struct {
	Order *domain.Order
	Lines []domain.OrderLine
	// Residual are cart items whose deletion failed. They stay in the cart.
	Residual []domain.CartItem
}

type Materializer struct {
	orders      OrderStore
	cart        CartStore
	log         *zap.Logger
	timeout     time.Duration
	createRetry retry.Policy
	concurrency int
}

type Option func(*Materializer)

func WithTimeout(d time.Duration) Option {
	return func(m *Materializer) { m.timeout = d }
}

func WithCreateRetry(p retry.Policy) Option {
	return func(m *Materializer) { m.createRetry = p }
}

// WithConcurrency caps in-flight writes per fan-out. Zero or less means unbounded.
func WithConcurrency(n int) Option {
	return func(m *Materializer) { m.concurrency = n }
}

func New(orders OrderStore, cart CartStore, log *zap.Logger, opts ...Option) *Materializer {
	m := &Materializer{
		orders:      orders,
		cart:        cart,
		log:         log,
		timeout:     5 * time.Second,
		createRetry: retry.Policy{MaxRetries: 2, InitialInterval: 100 * time.Millisecond},
		concurrency: 16,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize turns the owner's cart into an order. The order is written first; lines are then
// written concurrently and the cart items deleted concurrently, each step waiting for all of its writes.
// Running it again for the same checkout reuses the existing order and skips lines already written.
func (m *Materializer) Materialize(ctx context.Context, req Request) (*Result, error) {
	order, err := m.createOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateOrder, err)
	}

	items, err := m.snapshot(ctx, req.OwnerID)
	if err != nil {
		return &Result{Order: order}, fmt.Errorf("%w: %w", ErrReadCart, err)
	}

	lines, err := m.writeLines(ctx, order.ID, items)
	if err != nil {
		return &Result{Order: order}, fmt.Errorf("%w: %w", ErrWriteLines, err)
	}

	residual := m.clearCart(ctx, req.OwnerID, items)
	if len(residual) > 0 {
		m.log.Warn("cart items left after materialization",
			zap.String("checkout_id", req.CheckoutID),
			zap.String("owner_id", req.OwnerID),
			zap.Int("residual", len(residual)))
	}

	return &Result{Order: order, Lines: lines, Residual: residual}, nil
}

func (m *Materializer) createOrder(ctx context.Context, req Request) (*domain.Order, error) {
	order := &domain.Order{
		ID:              uuid.NewString(),
		CheckoutID:      req.CheckoutID,
		OwnerID:         req.OwnerID,
		ShippingDetails: req.Shipping,
	}

	retryable := func(error) bool { return ctx.Err() == nil }
	err := retry.Do(ctx, m.createRetry, retryable, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		err := m.orders.CreateOrder(callCtx, order)
		if errors.Is(err, repository.ErrDuplicateCheckout) {
			existing, getErr := m.orders.GetOrderByCheckoutID(callCtx, req.CheckoutID)
			if getErr != nil {
				return getErr
			}
			order = existing
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (m *Materializer) snapshot(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.cart.Snapshot(callCtx, ownerID)
}

func (m *Materializer) writeLines(ctx context.Context, orderID string, items []domain.CartItem) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, len(items))

	var g errgroup.Group
	if m.concurrency > 0 {
		g.SetLimit(m.concurrency)
	}
	for i, item := range items {
		lines[i] = domain.OrderLine{
			OrderID:    orderID,
			CartItemID: item.ID,
			ProductID:  item.ProductID,
			Option:     item.Option,
			Quantity:   item.Quantity,
		}
		line := &lines[i]
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			return m.orders.CreateOrderLine(callCtx, line)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (m *Materializer) clearCart(ctx context.Context, ownerID string, items []domain.CartItem) []domain.CartItem {
	var (
		mu       sync.Mutex
		residual []domain.CartItem
		g        errgroup.Group
	)
	if m.concurrency > 0 {
		g.SetLimit(m.concurrency)
	}
	for _, item := range items {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			err := m.cart.DeleteItem(callCtx, ownerID, item.ID)
			if err == nil || errors.Is(err, cartrepo.ErrItemNotFound) {
				return nil
			}
			m.log.Warn("failed to delete cart item",
				zap.String("owner_id", ownerID),
				zap.String("item_id", item.ID),
				zap.Error(err))
			mu.Lock()
			residual = append(residual, item)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return residual
}
