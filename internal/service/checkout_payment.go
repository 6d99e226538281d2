package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
	pi "github.com/fjod/go_cart/storefront/internal/paymentintent"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/fjod/go_cart/storefront/pkg/retry"
	"go.uber.org/zap"
)

// requestIntent moves a persisted AWAITING_INTENT attempt to AWAITING_CONFIRMATION, or to FAILED when no intent can be issued.
// The attempt id is the gateway idempotency key, so retries cannot create a second intent.
// The outcome is stored even when ctx expires during the issuer calls.
func (s *CheckoutServiceImpl) requestIntent(ctx context.Context, attempt *domain.CheckoutAttempt) (*domain.CheckoutAttempt, error) {
	if !domain.CanTransitionTo(attempt.Status, domain.CheckoutStatusAwaitingConfirmation) {
		return attempt, IllegalTransitionError
	}

	req := &pi.IssueIntentRequest{
		Operation:      pi.OperationMutation,
		Amount:         attempt.AmountMinor,
		IdempotencyKey: attempt.ID,
	}

	var intent *pi.IssueIntentResponse
	retryable := func(err error) bool { return errors.Is(err, pi.ErrGatewayUnavailable) }
	issueErr := retry.Do(ctx, s.issuerRetry, retryable, func(ctx context.Context) error {
		var err error
		intent, err = s.issuer.issue(ctx, req)
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("issue payment intent failed",
				zap.String("checkout_id", attempt.ID),
				zap.Error(err))
		}
		return err
	})

	storeCtx, cancel := s.detached(ctx)
	defer cancel()

	if issueErr != nil {
		// the retry loop hands back a bare context error once ctx is done
		issueErr = unavailableOnDeadline(issueErr)
		failure := r.Failure{Reason: domain.FailurePaymentSetup, Message: issueErr.Error()}
		if err := s.repo.FailAttempt(storeCtx, attempt.ID, attempt.Status, failure, nil); err != nil {
			if errors.Is(err, r.ErrStaleAttempt) {
				return s.current(storeCtx, attempt)
			}
			return attempt, fmt.Errorf("failed to record payment setup failure: %w", err)
		}
		s.markFailed(ctx, attempt, failure)
		return attempt, fmt.Errorf("%w: %w", ErrPaymentSetup, issueErr)
	}

	if err := s.repo.SetIntent(storeCtx, attempt.ID, intent.IntentID, intent.ClientSecret); err != nil {
		if errors.Is(err, r.ErrStaleAttempt) {
			return s.current(storeCtx, attempt)
		}
		return attempt, fmt.Errorf("failed to store payment intent: %w", err)
	}
	if err := s.advance(ctx, attempt, domain.CheckoutStatusAwaitingConfirmation); err != nil {
		return attempt, err
	}
	attempt.PaymentIntentID = intent.IntentID
	attempt.ClientSecret = intent.ClientSecret
	return attempt, nil
}

// detached returns a context for state writes that outlives the caller's cancellation.
func (s *CheckoutServiceImpl) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
}

// current returns the stored attempt after a concurrent request of the same owner moved it first.
func (s *CheckoutServiceImpl) current(ctx context.Context, attempt *domain.CheckoutAttempt) (*domain.CheckoutAttempt, error) {
	stored, err := s.repo.GetAttempt(ctx, attempt.ID)
	if err != nil {
		return attempt, fmt.Errorf("failed to reload checkout attempt: %w", err)
	}
	return stored, nil
}
