package paymentintent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
)

// Operation is the kind of call made against the issuer. Only mutations create intents.
type Operation string

const (
	OperationMutation Operation = "Mutation"
	OperationQuery    Operation = "Query"
)

type IssueIntentRequest struct {
	Operation Operation `json:"operation"`
	// Amount is in minor currency units.
	Amount int64 `json:"amount"`
	// IdempotencyKey is forwarded to the gateway so a retried call for the same
	// checkout attempt cannot create a second intent.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type IssueIntentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
}

type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency, idempotencyKey string) (Intent, error)
	// GetPaymentIntent returns ErrIntentNotFound for an id the gateway does not know.
	GetPaymentIntent(ctx context.Context, intentID string) (*IntentStatusResponse, error)
}

type Issuer struct {
	gateway       Gateway
	currency      string
	timeout       time.Duration
	breaker       *circuitbreaker.Breaker[Intent]
	statusBreaker *circuitbreaker.Breaker[*IntentStatusResponse]
	log           *zap.Logger
}

func NewIssuer(gateway Gateway, currency string, timeout time.Duration, log *zap.Logger) *Issuer {
	return &Issuer{
		gateway:  gateway,
		currency: currency,
		timeout:  timeout,
		breaker: circuitbreaker.New[Intent](circuitbreaker.Settings{
			Name:                "payment-gateway",
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		}),
		statusBreaker: circuitbreaker.New[*IntentStatusResponse](circuitbreaker.Settings{
			Name:                "payment-gateway-status",
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
			IsFailure: func(err error) bool {
				return !errors.Is(err, ErrIntentNotFound)
			},
		}),
		log: log,
	}
}

// IssueIntent checks the request before any gateway call and creates exactly one intent
// per accepted invocation. Gateway failures are not retried here.
func (i *Issuer) IssueIntent(ctx context.Context, req *IssueIntentRequest) (*IssueIntentResponse, error) {
	if req.Operation != OperationMutation {
		return nil, ErrInvalidRole
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	log := logger.WithContext(ctx, i.log)

	intent, err := i.breaker.Execute(func() (Intent, error) {
		gatewayCtx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()
		return i.gateway.CreatePaymentIntent(gatewayCtx, req.Amount, i.currency, req.IdempotencyKey)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			log.Warn("payment gateway circuit open", zap.Int64("amount", req.Amount))
		} else {
			log.Error("create payment intent failed", zap.Int64("amount", req.Amount), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	log.Info("payment intent created",
		zap.String("intent_id", intent.ID),
		zap.Int64("amount", req.Amount),
		zap.String("currency", i.currency),
		zap.String("idempotency_key", req.IdempotencyKey))

	return &IssueIntentResponse{IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// IntentStatus reads the current state of an intent from the gateway.
func (i *Issuer) IntentStatus(ctx context.Context, req *IntentStatusRequest) (*IntentStatusResponse, error) {
	if req.IntentID == "" {
		return nil, ErrIntentNotFound
	}

	resp, err := i.statusBreaker.Execute(func() (*IntentStatusResponse, error) {
		gatewayCtx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()
		return i.gateway.GetPaymentIntent(gatewayCtx, req.IntentID)
	})
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			return nil, err
		}
		logger.WithContext(ctx, i.log).Error("get payment intent failed",
			zap.String("intent_id", req.IntentID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return resp, nil
}
