package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
)

const attemptColumns = `id, owner_id, idempotency_key, status, failure_reason, failure_code, failure_message,
	amount_minor, currency, payment_intent_id, client_secret, recipient_name, phone_number, country, city, street_address,
	order_id, reconcile_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*domain.CheckoutAttempt, error) {
	var a domain.CheckoutAttempt
	var orderID sql.NullString
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.IdempotencyKey,
		&a.Status,
		&a.FailureReason,
		&a.FailureCode,
		&a.FailureMessage,
		&a.AmountMinor,
		&a.Currency,
		&a.PaymentIntentID,
		&a.ClientSecret,
		&a.Shipping.RecipientName,
		&a.Shipping.PhoneNumber,
		&a.Shipping.Country,
		&a.Shipping.City,
		&a.Shipping.StreetAddress,
		&orderID,
		&a.ReconcileCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		a.OrderID = &orderID.String
	}
	return &a, nil
}

func (r *Repository) CreateAttempt(ctx context.Context, a *domain.CheckoutAttempt) error {
	query := `INSERT INTO checkout_attempts (id, owner_id, idempotency_key, status, amount_minor, currency,
	              recipient_name, phone_number, country, city, street_address, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	          RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		a.ID,
		a.OwnerID,
		a.IdempotencyKey,
		a.Status,
		a.AmountMinor,
		a.Currency,
		a.Shipping.RecipientName,
		a.Shipping.PhoneNumber,
		a.Shipping.Country,
		a.Shipping.City,
		a.Shipping.StreetAddress,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert checkout attempt: %w", err)
	}
	return nil
}

func (r *Repository) GetAttempt(ctx context.Context, id string) (*domain.CheckoutAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts WHERE id = $1`

	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) || pqCode(err) == invalidTextRepresentation {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout attempt: %w", err)
	}
	return a, nil
}

// GetAttemptByIdempotencyKey looks the key up within one owner's attempts. Keys of other owners never match.
func (r *Repository) GetAttemptByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.CheckoutAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts WHERE owner_id = $1 AND idempotency_key = $2`

	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, ownerID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout attempt by idempotency key: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAttempts(ctx context.Context, filter AttemptFilter) ([]*domain.CheckoutAttempt, error) {
	var conds []string
	var args []any
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	return r.queryAttempts(ctx, query, args...)
}

// ListReconciliationCandidates returns attempts that have been idle since before idleSince and are
// either stuck in MATERIALIZING or failed during materialization, and were reconciled fewer than maxReconciles times.
func (r *Repository) ListReconciliationCandidates(ctx context.Context, idleSince time.Time, maxReconciles int, limit int) ([]*domain.CheckoutAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts
	          WHERE updated_at < $1
	            AND reconcile_count < $2
	            AND (status = $3 OR (status = $4 AND failure_reason = $5))
	          ORDER BY updated_at
	          LIMIT $6`

	return r.queryAttempts(ctx, query,
		idleSince,
		maxReconciles,
		domain.CheckoutStatusMaterializing,
		domain.CheckoutStatusFailed,
		domain.FailureMaterialization,
		limit)
}

func (r *Repository) queryAttempts(ctx context.Context, query string, args ...any) ([]*domain.CheckoutAttempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checkout attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.CheckoutAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkout attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return attempts, nil
}

func (r *Repository) UpdateAttemptStatus(ctx context.Context, id string, from, to domain.CheckoutStatus) error {
	query := `UPDATE checkout_attempts SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("update checkout attempt status: %w", err)
	}
	return expectOneRow(res)
}

func (r *Repository) SetIntent(ctx context.Context, id string, intentID, clientSecret string) error {
	query := `UPDATE checkout_attempts SET status = $3, payment_intent_id = $4, client_secret = $5, updated_at = NOW()
	          WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id,
		domain.CheckoutStatusAwaitingIntent,
		domain.CheckoutStatusAwaitingConfirmation,
		intentID,
		clientSecret)
	if err != nil {
		return fmt.Errorf("set payment intent: %w", err)
	}
	return expectOneRow(res)
}

// RetryIntent reopens an attempt whose payment setup failed so a new intent can be requested for it.
func (r *Repository) RetryIntent(ctx context.Context, id string) error {
	query := `UPDATE checkout_attempts
	          SET status = $2, failure_reason = '', failure_code = '', failure_message = '', updated_at = NOW()
	          WHERE id = $1 AND status = $3 AND failure_reason = $4`

	res, err := r.db.ExecContext(ctx, query, id,
		domain.CheckoutStatusAwaitingIntent,
		domain.CheckoutStatusFailed,
		domain.FailurePaymentSetup)
	if err != nil {
		return fmt.Errorf("retry payment intent: %w", err)
	}
	return expectOneRow(res)
}

// FailAttempt moves the attempt to FAILED and, when event is set, records it in the outbox in the same transaction.
func (r *Repository) FailAttempt(ctx context.Context, id string, from domain.CheckoutStatus, failure Failure, event *OutboxEvent) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE checkout_attempts
		          SET status = $3, failure_reason = $4, failure_code = $5, failure_message = $6, updated_at = NOW()
		          WHERE id = $1 AND status = $2`

		res, err := tx.ExecContext(ctx, query, id, from,
			domain.CheckoutStatusFailed,
			failure.Reason,
			failure.Code,
			failure.Message)
		if err != nil {
			return fmt.Errorf("fail checkout attempt: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}

		if event != nil {
			return insertOutboxEvent(ctx, tx, event)
		}
		return nil
	})
}

// CompleteAttempt records the order on the attempt, marks it COMPLETED and writes the outbox event atomically.
func (r *Repository) CompleteAttempt(ctx context.Context, id string, from domain.CheckoutStatus, orderID string, event *OutboxEvent) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE checkout_attempts
		          SET status = $3, order_id = $4, failure_reason = '', failure_code = '', failure_message = '', updated_at = NOW()
		          WHERE id = $1 AND status = $2`

		res, err := tx.ExecContext(ctx, query, id, from, domain.CheckoutStatusCompleted, orderID)
		if err != nil {
			return fmt.Errorf("complete checkout attempt: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}

		if event != nil {
			return insertOutboxEvent(ctx, tx, event)
		}
		return nil
	})
}

func (r *Repository) StartReconcile(ctx context.Context, id string, from domain.CheckoutStatus) error {
	query := `UPDATE checkout_attempts
	          SET status = $3, failure_reason = '', failure_code = '', failure_message = '',
	              reconcile_count = reconcile_count + 1, updated_at = NOW()
	          WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, from, domain.CheckoutStatusMaterializing)
	if err != nil {
		return fmt.Errorf("start reconcile: %w", err)
	}
	return expectOneRow(res)
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleAttempt
	}
	return nil
}
