package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/go_cart/storefront/internal/cart/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	topic   = "checkout-outbox"
	groupID = "cart-residual-sweeper"

	checkoutCompleted = "CheckoutCompleted"
)

// MessageReader fetches without committing, so an offset only moves once its message is handled.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CartItemDeleter interface {
	DeleteItem(ctx context.Context, ownerID, itemID string) error
}

type checkoutCompletedEvent struct {
	CheckoutID    string   `json:"checkout_id"`
	OwnerID       string   `json:"owner_id"`
	ResidualItems []string `json:"residual_items"`
}

// ResidualConsumer removes purchased cart items that checkout could not delete itself.
type ResidualConsumer struct {
	cart   CartItemDeleter
	reader MessageReader
	log    *zap.Logger

	retryInitial time.Duration
	retryMax     time.Duration
}

func NewKafkaReader(brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewResidualConsumer(cart CartItemDeleter, reader MessageReader, log *zap.Logger) *ResidualConsumer {
	return &ResidualConsumer{
		cart:         cart,
		reader:       reader,
		log:          log,
		retryInitial: time.Second,
		retryMax:     time.Minute,
	}
}

func (c *ResidualConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *ResidualConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *ResidualConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.log.Error("error fetching message", zap.Error(err))
		return
	}

	if !c.handle(ctx, m) {
		return
	}
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.log.Error("error committing message",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}
}

// handle reports whether m is finished with. Residual items are retried until they are all gone
// or ctx ends. An unparseable message is finished with, since retrying cannot fix it.
func (c *ResidualConsumer) handle(ctx context.Context, m kafka.Message) bool {
	if eventType(m) != checkoutCompleted {
		return true
	}

	var event checkoutCompletedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Error("error parsing message", zap.String("key", string(m.Key)), zap.Error(err))
		return true
	}
	if event.OwnerID == "" || len(event.ResidualItems) == 0 {
		return true
	}

	pending := event.ResidualItems
	sweep := func() error {
		pending = c.sweep(ctx, event, pending)
		if len(pending) > 0 {
			return fmt.Errorf("%d residual cart items left", len(pending))
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("retrying residual cart sweep",
			zap.String("checkout_id", event.CheckoutID),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax
	b.MaxElapsedTime = 0
	if err := backoff.RetryNotify(sweep, backoff.WithContext(b, ctx), notify); err != nil {
		c.log.Warn("residual cart sweep interrupted, message left uncommitted",
			zap.String("checkout_id", event.CheckoutID),
			zap.Strings("pending", pending),
			zap.Error(err))
		return false
	}

	c.log.Info("residual cart items swept",
		zap.String("checkout_id", event.CheckoutID),
		zap.Int("items", len(event.ResidualItems)))
	return true
}

// sweep deletes items and returns the ones that could not be deleted. A missing item is already gone.
func (c *ResidualConsumer) sweep(ctx context.Context, event checkoutCompletedEvent, items []string) []string {
	var failed []string
	for _, itemID := range items {
		err := c.cart.DeleteItem(ctx, event.OwnerID, itemID)
		if err != nil && !errors.Is(err, repository.ErrItemNotFound) {
			c.log.Error("failed to delete residual cart item",
				zap.String("checkout_id", event.CheckoutID),
				zap.String("owner_id", event.OwnerID),
				zap.String("item_id", itemID),
				zap.Error(err))
			failed = append(failed, itemID)
		}
	}
	return failed
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
