package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

type MockRepository struct {
	mu           sync.Mutex
	OutboxEvents []*r.OutboxEvent
	GetErr       error
	MarkErr      error
	ProcessedIDs []int64
}

func (m *MockRepository) GetUnprocessedEvents(context.Context, int) ([]*r.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	ev := m.OutboxEvents
	m.OutboxEvents = nil // return each batch once
	return ev, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) processed() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ProcessedIDs...)
}

type MockWriter struct {
	Messages []kafkaGo.Message
	FailKeys map[string]bool
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	for _, m := range msgs {
		if w.FailKeys[string(m.Key)] {
			return errors.New("broker unavailable")
		}
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

type MockReconciler struct {
	Candidates   []*domain.CheckoutAttempt
	ListErr      error
	ReconcileErr map[string]error
	Reconciled   []string
}

func (m *MockReconciler) ListReconciliationCandidates(context.Context, int) ([]*domain.CheckoutAttempt, error) {
	return m.Candidates, m.ListErr
}

func (m *MockReconciler) Reconcile(_ context.Context, id string) (*domain.CheckoutAttempt, error) {
	m.Reconciled = append(m.Reconciled, id)
	if err := m.ReconcileErr[id]; err != nil {
		return nil, err
	}
	return &domain.CheckoutAttempt{ID: id, Status: domain.CheckoutStatusCompleted}, nil
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, Topic)
	time.Sleep(5 * time.Second)

	mockRepo := &MockRepository{
		OutboxEvents: []*r.OutboxEvent{
			{
				ID:          1,
				AggregateId: "checkout-123",
				EventType:   r.EventCheckoutCompleted,
				Payload:     json.RawMessage(`{"checkout_id":"checkout-123","order_id":"order-456"}`),
				CreatedAt:   time.Now(),
			},
		},
	}

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        Topic,
		Balancer:     &kafkaGo.Hash{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	defer writer.Close()

	poller := NewOutboxPoller(mockRepo, &MockReconciler{}, writer, zap.NewNop())
	poller.timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    Topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)

	assert.Equal(t, "checkout-123", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, r.EventCheckoutCompleted, string(msg.Headers[0].Value))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order-456", payload["order_id"])

	require.Eventually(t, func() bool {
		return len(mockRepo.processed()) == 1
	}, 5*time.Second, 100*time.Millisecond, "event was not marked as processed")
}

func TestProcessUnpublishedEvents_FailedPublishStaysUnprocessed(t *testing.T) {
	mockRepo := &MockRepository{
		OutboxEvents: []*r.OutboxEvent{
			{ID: 1, AggregateId: "a", EventType: r.EventCheckoutCompleted, Payload: []byte(`{}`)},
			{ID: 2, AggregateId: "b", EventType: r.EventCheckoutMaterializationFailed, Payload: []byte(`{}`)},
		},
	}
	writer := &MockWriter{FailKeys: map[string]bool{"a": true}}

	poller := NewOutboxPoller(mockRepo, &MockReconciler{}, writer, zap.NewNop())
	poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int64{2}, mockRepo.processed())
	require.Len(t, writer.Messages, 1)
	assert.Equal(t, "b", string(writer.Messages[0].Key))
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	mockRepo := &MockRepository{GetErr: errors.New("db down")}
	writer := &MockWriter{}

	poller := NewOutboxPoller(mockRepo, &MockReconciler{}, writer, zap.NewNop())

	assert.NotPanics(t, func() { poller.processUnpublishedEvents(context.Background()) })
	assert.Empty(t, writer.Messages)
}

func TestProcessUnpublishedEvents_MarkErrorContinues(t *testing.T) {
	mockRepo := &MockRepository{
		OutboxEvents: []*r.OutboxEvent{
			{ID: 1, AggregateId: "a", Payload: []byte(`{}`)},
			{ID: 2, AggregateId: "b", Payload: []byte(`{}`)},
		},
		MarkErr: errors.New("db down"),
	}
	writer := &MockWriter{}

	poller := NewOutboxPoller(mockRepo, &MockReconciler{}, writer, zap.NewNop())
	poller.processUnpublishedEvents(context.Background())

	assert.Len(t, writer.Messages, 2)
}

func TestRecoverStuckAttempts(t *testing.T) {
	reconciler := &MockReconciler{
		Candidates: []*domain.CheckoutAttempt{
			{ID: "stuck-1", Status: domain.CheckoutStatusMaterializing},
			{ID: "failed-2", Status: domain.CheckoutStatusFailed, FailureReason: domain.FailureMaterialization},
		},
	}

	poller := NewOutboxPoller(&MockRepository{}, reconciler, &MockWriter{}, zap.NewNop())
	poller.recoverStuckAttempts(context.Background())

	assert.Equal(t, []string{"stuck-1", "failed-2"}, reconciler.Reconciled)
}

func TestRecoverStuckAttempts_PartialFailures(t *testing.T) {
	reconciler := &MockReconciler{
		Candidates: []*domain.CheckoutAttempt{
			{ID: "a1", Status: domain.CheckoutStatusMaterializing},
			{ID: "a2", Status: domain.CheckoutStatusMaterializing},
			{ID: "a3", Status: domain.CheckoutStatusMaterializing},
		},
		ReconcileErr: map[string]error{"a2": errors.New("orders table unavailable")},
	}

	poller := NewOutboxPoller(&MockRepository{}, reconciler, &MockWriter{}, zap.NewNop())
	poller.recoverStuckAttempts(context.Background())

	assert.Equal(t, []string{"a1", "a2", "a3"}, reconciler.Reconciled)
}

func TestRecoverStuckAttempts_ListError(t *testing.T) {
	reconciler := &MockReconciler{ListErr: errors.New("db down")}

	poller := NewOutboxPoller(&MockRepository{}, reconciler, &MockWriter{}, zap.NewNop())
	poller.recoverStuckAttempts(context.Background())

	assert.Empty(t, reconciler.Reconciled)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	poller := NewOutboxPoller(&MockRepository{}, &MockReconciler{}, &MockWriter{}, zap.NewNop())
	poller.eventTick = 10 * time.Millisecond
	poller.recoveryTick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
