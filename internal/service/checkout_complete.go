package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/materializer"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
)

// materialize runs the materializer for an attempt already persisted as MATERIALIZING.
func (s *CheckoutServiceImpl) materialize(ctx context.Context, attempt *domain.CheckoutAttempt) (*domain.CheckoutAttempt, error) {
	res, err := s.materializer.Materialize(ctx, materializer.Request{
		CheckoutID: attempt.ID,
		OwnerID:    attempt.OwnerID,
		Shipping:   attempt.Shipping,
	})
	if err != nil {
		return s.failMaterialization(ctx, attempt, err)
	}
	return s.complete(ctx, attempt, res)
}

func (s *CheckoutServiceImpl) complete(ctx context.Context, attempt *domain.CheckoutAttempt, res *materializer.Result) (*domain.CheckoutAttempt, error) {
	if !domain.CanTransitionTo(attempt.Status, domain.CheckoutStatusCompleted) {
		return attempt, IllegalTransitionError
	}

	residual := make([]string, 0, len(res.Residual))
	for _, item := range res.Residual {
		residual = append(residual, item.ID)
	}
	payload := map[string]interface{}{
		"checkout_id":    attempt.ID,
		"order_id":       res.Order.ID,
		"owner_id":       attempt.OwnerID,
		"amount_minor":   attempt.AmountMinor,
		"currency":       attempt.Currency,
		"line_count":     len(res.Lines),
		"residual_items": residual,
		"completed_at":   time.Now().UTC(),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return attempt, fmt.Errorf("failed to marshal checkout payload: %w", err)
	}

	event := &r.OutboxEvent{AggregateId: attempt.ID, EventType: r.EventCheckoutCompleted, Payload: payloadJSON}
	if err := s.repo.CompleteAttempt(ctx, attempt.ID, attempt.Status, res.Order.ID, event); err != nil {
		if errors.Is(err, r.ErrStaleAttempt) {
			return s.reloadOnStale(ctx, attempt, err)
		}
		// the order is durable; recovery completes the attempt from MATERIALIZING
		logger.WithContext(ctx, s.log).Error("failed to complete checkout",
			zap.String("checkout_id", attempt.ID),
			zap.String("order_id", res.Order.ID),
			zap.Bool("needs_reconciliation", true),
			zap.Error(err))
		return attempt, fmt.Errorf("%w: %w", ErrMaterialization, err)
	}

	if err := s.advance(ctx, attempt, domain.CheckoutStatusCompleted); err != nil {
		return attempt, err
	}
	orderID := res.Order.ID
	attempt.OrderID = &orderID
	attempt.FailureReason, attempt.FailureCode, attempt.FailureMessage = domain.FailureNone, "", ""
	return attempt, nil
}

// failMaterialization records a failure after payment capture together with an outbox event,
// so the failure is published and the attempt can be reconciled.
func (s *CheckoutServiceImpl) failMaterialization(ctx context.Context, attempt *domain.CheckoutAttempt, cause error) (*domain.CheckoutAttempt, error) {
	failure := r.Failure{Reason: domain.FailureMaterialization, Message: cause.Error()}
	if errors.Is(cause, ErrEmptyCart) {
		failure.Code = "empty_cart"
	}

	payload := map[string]interface{}{
		"checkout_id":     attempt.ID,
		"owner_id":        attempt.OwnerID,
		"amount_minor":    attempt.AmountMinor,
		"currency":        attempt.Currency,
		"failure_code":    failure.Code,
		"failure_message": failure.Message,
		"reconcile_count": attempt.ReconcileCount,
		"failed_at":       time.Now().UTC(),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return attempt, fmt.Errorf("failed to marshal failure payload: %w", err)
	}

	event := &r.OutboxEvent{AggregateId: attempt.ID, EventType: r.EventCheckoutMaterializationFailed, Payload: payloadJSON}
	if err := s.repo.FailAttempt(ctx, attempt.ID, attempt.Status, failure, event); err != nil {
		if errors.Is(err, r.ErrStaleAttempt) {
			return s.reloadOnStale(ctx, attempt, err)
		}
		logger.WithContext(ctx, s.log).Error("failed to record materialization failure",
			zap.String("checkout_id", attempt.ID),
			zap.Bool("needs_reconciliation", true),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return attempt, fmt.Errorf("%w: %w", ErrMaterialization, cause)
	}

	s.markFailed(ctx, attempt, failure)
	return attempt, fmt.Errorf("%w: %w", ErrMaterialization, cause)
}
