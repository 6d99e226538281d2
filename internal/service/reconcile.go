package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	r "github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"go.uber.org/zap"
)

// Reconcile reruns materialization for an attempt whose payment was captured but whose order
// was not fully recorded. The order and its lines are keyed by the attempt, so a rerun never duplicates them.
func (s *CheckoutServiceImpl) Reconcile(ctx context.Context, checkoutID string) (*domain.CheckoutAttempt, error) {
	attempt, err := s.repo.GetAttempt(ctx, checkoutID)
	if errors.Is(err, r.ErrAttemptNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkout attempt: %w", err)
	}
	if !domain.CanReconcile(attempt.Status, attempt.FailureReason) {
		return attempt, ErrNotReconcilable
	}

	if err := s.repo.StartReconcile(ctx, attempt.ID, attempt.Status); err != nil {
		if errors.Is(err, r.ErrStaleAttempt) {
			return attempt, fmt.Errorf("%w: %w", ErrNotReconcilable, err)
		}
		return attempt, fmt.Errorf("failed to start reconcile: %w", err)
	}

	logger.WithContext(ctx, s.log).Info("reconciling checkout",
		zap.String("checkout_id", attempt.ID),
		zap.Stringer("from", attempt.Status),
		zap.Int("reconcile_count", attempt.ReconcileCount+1))

	attempt.Status = domain.CheckoutStatusMaterializing
	attempt.ReconcileCount++
	attempt.FailureReason, attempt.FailureCode, attempt.FailureMessage = domain.FailureNone, "", ""

	if err := s.checkCart(ctx, attempt); err != nil {
		return s.failMaterialization(ctx, attempt, err)
	}
	return s.materialize(ctx, attempt)
}

// ListReconciliationCandidates returns attempts idle for longer than the recovery threshold that
// are stuck mid-materialization or failed after capture, and have reconcile runs left.
func (s *CheckoutServiceImpl) ListReconciliationCandidates(ctx context.Context, limit int) ([]*domain.CheckoutAttempt, error) {
	attempts, err := s.repo.ListReconciliationCandidates(ctx, time.Now().Add(-s.stuckAfter), s.maxReconciles, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation candidates: %w", err)
	}
	return attempts, nil
}
