package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const Topic = "checkout-outbox"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Reconciler finishes checkouts whose materialization was interrupted or failed.
type Reconciler interface {
	ListReconciliationCandidates(ctx context.Context, limit int) ([]*domain.CheckoutAttempt, error)
	Reconcile(ctx context.Context, checkoutID string) (*domain.CheckoutAttempt, error)
}

type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	batchSize    int
	repo         r.OutboxStore
	reconciler   Reconciler
	writer       MessageWriter
	log          *zap.Logger
}

func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo r.OutboxStore, reconciler Reconciler, writer MessageWriter, log *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		timeout:      time.Second * 5,
		eventTick:    time.Second,
		recoveryTick: time.Second * 30,
		batchSize:    100,
		repo:         repo,
		reconciler:   reconciler,
		writer:       writer,
		log:          log,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStuckAttempts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.Error("failed to publish outbox event", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark outbox event as processed", zap.Int64("event_id", event.ID), zap.Error(err))
		}
	}
}

// recoverStuckAttempts reconciles attempts left in MATERIALIZING by a crash, and retries failed
// materializations until their reconcile budget runs out.
func (p *OutboxPoller) recoverStuckAttempts(ctx context.Context) {
	attempts, err := p.reconciler.ListReconciliationCandidates(ctx, p.batchSize)
	if err != nil {
		p.log.Error("failed to get stuck checkout attempts", zap.Error(err))
		return
	}

	for _, attempt := range attempts {
		p.log.Info("recovering checkout attempt",
			zap.String("checkout_id", attempt.ID),
			zap.Stringer("status", attempt.Status),
			zap.Int("reconcile_count", attempt.ReconcileCount))

		recovered, err := p.reconciler.Reconcile(ctx, attempt.ID)
		if err != nil {
			p.log.Error("failed to recover checkout attempt", zap.String("checkout_id", attempt.ID), zap.Error(err))
			continue
		}
		p.log.Info("checkout attempt recovered", zap.String("checkout_id", recovered.ID), zap.Stringer("status", recovered.Status))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // checkout_id for ordering
		Value: event.Payload,             // Already JSON from database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(writeCtx, msg)
}
