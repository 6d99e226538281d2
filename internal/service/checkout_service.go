package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Begin validates the submission, records the attempt and obtains a payment intent for it.
// Idempotency keys are scoped to the owner. A known key returns the owner's stored attempt, resuming
// payment setup when that attempt never obtained an intent.
// When the attempt was recorded but a later step failed, both the attempt and the error are returned.
func (s *CheckoutServiceImpl) Begin(ctx context.Context, request *domain.CheckoutRequest) (*domain.CheckoutAttempt, error) {
	log := logger.WithContext(ctx, s.log)

	if request.IdempotencyKey == "" {
		request.IdempotencyKey = uuid.NewString()
	}

	existing, err := s.repo.GetAttemptByIdempotencyKey(ctx, request.OwnerID, request.IdempotencyKey)
	if err != nil && !errors.Is(err, r.ErrIdempotencyKeyNotFound) {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		log.Info("duplicate checkout request",
			zap.String("idempotency_key", request.IdempotencyKey),
			zap.String("checkout_id", existing.ID),
			zap.Stringer("status", existing.Status))
		return s.resume(ctx, existing)
	}

	attempt := &domain.CheckoutAttempt{
		ID:             uuid.NewString(),
		OwnerID:        request.OwnerID,
		IdempotencyKey: request.IdempotencyKey,
		Status:         domain.CheckoutStatusIdle,
		Currency:       s.currency,
	}

	if err := s.advance(ctx, attempt, domain.CheckoutStatusValidatingForm); err != nil {
		return nil, err
	}
	amount, err := s.validate(request)
	attempt.Shipping = request.Shipping
	if err != nil {
		s.markFailed(ctx, attempt, r.Failure{Reason: domain.FailureValidation, Message: err.Error()})
		return attempt, err
	}
	attempt.AmountMinor = amount

	items, err := s.cart.snapshot(ctx, request.OwnerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	if err := s.advance(ctx, attempt, domain.CheckoutStatusAwaitingIntent); err != nil {
		return nil, err
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		if errors.Is(err, r.ErrDuplicateIdempotencyKey) {
			// lost a race with a concurrent submission of the same key
			return s.repo.GetAttemptByIdempotencyKey(ctx, request.OwnerID, request.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to create checkout attempt: %w", err)
	}

	return s.requestIntent(ctx, attempt)
}

// resume re-drives payment setup for an attempt that has no intent yet and returns any other attempt as stored.
func (s *CheckoutServiceImpl) resume(ctx context.Context, attempt *domain.CheckoutAttempt) (*domain.CheckoutAttempt, error) {
	switch {
	case attempt.Status == domain.CheckoutStatusAwaitingIntent:
		return s.requestIntent(ctx, attempt)
	case domain.CanRetryIntent(attempt.Status, attempt.FailureReason):
		if err := s.repo.RetryIntent(ctx, attempt.ID); err != nil {
			if errors.Is(err, r.ErrStaleAttempt) {
				return s.current(ctx, attempt)
			}
			return attempt, fmt.Errorf("failed to reopen payment setup: %w", err)
		}
		logger.WithContext(ctx, s.log).Info("retrying payment setup",
			zap.String("checkout_id", attempt.ID),
			zap.String("owner_id", attempt.OwnerID))
		attempt.Status = domain.CheckoutStatusAwaitingIntent
		attempt.FailureReason, attempt.FailureCode, attempt.FailureMessage = domain.FailureNone, "", ""
		return s.requestIntent(ctx, attempt)
	default:
		return attempt, nil
	}
}

func (s *CheckoutServiceImpl) GetAttempt(ctx context.Context, ownerID, checkoutID string) (*domain.CheckoutAttempt, error) {
	attempt, err := s.repo.GetAttempt(ctx, checkoutID)
	if errors.Is(err, r.ErrAttemptNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout attempt: %w", err)
	}
	if attempt.OwnerID != ownerID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// advance moves the in-memory attempt to the next status, rejecting moves the state machine forbids.
func (s *CheckoutServiceImpl) advance(ctx context.Context, attempt *domain.CheckoutAttempt, to domain.CheckoutStatus) error {
	if !domain.CanTransitionTo(attempt.Status, to) {
		return IllegalTransitionError
	}
	logger.WithContext(ctx, s.log).Info("checkout transition",
		zap.String("checkout_id", attempt.ID),
		zap.String("owner_id", attempt.OwnerID),
		zap.Stringer("from", attempt.Status),
		zap.Stringer("to", to))
	attempt.Status = to
	return nil
}

func (s *CheckoutServiceImpl) markFailed(ctx context.Context, attempt *domain.CheckoutAttempt, failure r.Failure) {
	fields := []zap.Field{
		zap.String("checkout_id", attempt.ID),
		zap.String("owner_id", attempt.OwnerID),
		zap.Stringer("from", attempt.Status),
		zap.String("reason", string(failure.Reason)),
		zap.String("code", failure.Code),
		zap.String("message", failure.Message),
	}
	log := logger.WithContext(ctx, s.log)
	switch failure.Reason {
	case domain.FailureValidation, domain.FailurePaymentDeclined:
		log.Warn("checkout failed", fields...)
	case domain.FailureMaterialization:
		log.Error("checkout failed", append(fields, zap.Bool("needs_reconciliation", true))...)
	default:
		log.Error("checkout failed", fields...)
	}

	attempt.Status = domain.CheckoutStatusFailed
	attempt.FailureReason = failure.Reason
	attempt.FailureCode = failure.Code
	attempt.FailureMessage = failure.Message
}
