package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
	pi "github.com/fjod/go_cart/storefront/internal/paymentintent"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
)

// Confirm applies the payment confirmation outcome to an attempt awaiting it.
// The reported outcome is checked against the gateway, whose answer wins: an order is only
// materialized for a paid intent. A decline or cancellation fails the attempt and leaves the cart untouched.
// Confirming an attempt that already finished returns it unchanged.
func (s *CheckoutServiceImpl) Confirm(ctx context.Context, ownerID, checkoutID string, reported domain.ConfirmationResult) (*domain.CheckoutAttempt, error) {
	attempt, err := s.GetAttempt(ctx, ownerID, checkoutID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsTerminal() {
		return attempt, nil
	}
	if attempt.Status != domain.CheckoutStatusAwaitingConfirmation {
		return attempt, IllegalTransitionError
	}

	result, err := s.settle(ctx, attempt, reported)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("payment confirmation not accepted",
			zap.String("checkout_id", attempt.ID),
			zap.String("intent_id", attempt.PaymentIntentID),
			zap.String("reported", string(reported.Outcome)),
			zap.Error(err))
		return attempt, err
	}
	if !result.Succeeded() {
		return s.decline(ctx, attempt, result)
	}

	// payment is captured from here on, so every failure below is a materialization failure
	if err := s.checkCart(ctx, attempt); err != nil {
		return s.failMaterialization(ctx, attempt, err)
	}

	if err := s.repo.UpdateAttemptStatus(ctx, attempt.ID, attempt.Status, domain.CheckoutStatusMaterializing); err != nil {
		return s.reloadOnStale(ctx, attempt, fmt.Errorf("failed to start materialization: %w", err))
	}
	if err := s.advance(ctx, attempt, domain.CheckoutStatusMaterializing); err != nil {
		return attempt, err
	}

	return s.materialize(ctx, attempt)
}

// Checkout runs one attempt end to end: submission, intent, confirmation and materialization.
func (s *CheckoutServiceImpl) Checkout(ctx context.Context, request *domain.CheckoutRequest, confirmer PaymentConfirmer) (*domain.CheckoutAttempt, error) {
	attempt, err := s.Begin(ctx, request)
	if err != nil {
		return attempt, err
	}
	if attempt.Status != domain.CheckoutStatusAwaitingConfirmation {
		return attempt, nil
	}

	result, err := confirmer.Confirm(ctx, attempt.ClientSecret)
	if err != nil {
		return attempt, fmt.Errorf("payment confirmation: %w", err)
	}

	return s.Confirm(ctx, request.OwnerID, attempt.ID, result)
}

// settle resolves the client's report against the intent state held by the gateway.
// An intent that is still in flight leaves the attempt awaiting confirmation.
func (s *CheckoutServiceImpl) settle(ctx context.Context, attempt *domain.CheckoutAttempt, reported domain.ConfirmationResult) (domain.ConfirmationResult, error) {
	st, err := s.issuer.status(ctx, attempt.PaymentIntentID)
	if err != nil {
		return reported, fmt.Errorf("%w: %w", ErrPaymentUnverified, err)
	}

	switch {
	case st.State.Paid():
		return domain.ConfirmationResult{Outcome: domain.ConfirmationSucceeded}, nil
	case st.State == pi.IntentCanceled:
		return domain.ConfirmationResult{Outcome: domain.ConfirmationCancelled, Code: st.DeclineCode, Message: st.DeclineMessage}, nil
	case st.State == pi.IntentProcessing:
		return reported, ErrPaymentPending
	case st.DeclineCode != "" || st.DeclineMessage != "":
		return domain.ConfirmationResult{Outcome: domain.ConfirmationDeclined, Code: st.DeclineCode, Message: st.DeclineMessage}, nil
	case reported.Succeeded():
		return reported, ErrPaymentPending
	default:
		return reported, nil
	}
}

func (s *CheckoutServiceImpl) decline(ctx context.Context, attempt *domain.CheckoutAttempt, result domain.ConfirmationResult) (*domain.CheckoutAttempt, error) {
	code := result.Code
	if code == "" && result.Outcome == domain.ConfirmationCancelled {
		code = string(domain.ConfirmationCancelled)
	}
	failure := r.Failure{Reason: domain.FailurePaymentDeclined, Code: code, Message: result.Message}

	storeCtx, cancel := s.detached(ctx)
	defer cancel()
	if err := s.repo.FailAttempt(storeCtx, attempt.ID, attempt.Status, failure, nil); err != nil {
		return s.reloadOnStale(storeCtx, attempt, fmt.Errorf("failed to record decline: %w", err))
	}
	s.markFailed(ctx, attempt, failure)
	return attempt, &DeclineError{Code: code, Message: result.Message}
}

// checkCart refuses to materialize an empty cart, unless an earlier run already wrote the order and cleared it.
func (s *CheckoutServiceImpl) checkCart(ctx context.Context, attempt *domain.CheckoutAttempt) error {
	items, err := s.cart.snapshot(ctx, attempt.OwnerID)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		return nil
	}

	_, err = s.repo.GetOrderByCheckoutID(ctx, attempt.ID)
	if err == nil {
		return nil
	}
	if errors.Is(err, r.ErrOrderNotFound) {
		return ErrEmptyCart
	}
	return fmt.Errorf("failed to look up order: %w", err)
}

// reloadOnStale returns the stored attempt when another writer moved it first, and err otherwise.
func (s *CheckoutServiceImpl) reloadOnStale(ctx context.Context, attempt *domain.CheckoutAttempt, err error) (*domain.CheckoutAttempt, error) {
	if !errors.Is(err, r.ErrStaleAttempt) {
		return attempt, err
	}
	current, getErr := s.repo.GetAttempt(ctx, attempt.ID)
	if getErr != nil {
		return attempt, err
	}
	if current.Status.IsTerminal() {
		return current, nil
	}
	return current, IllegalTransitionError
}
