package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/domain"
)

// CreateOrder inserts the order. A second order for the same checkout returns ErrDuplicateCheckout.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `INSERT INTO orders (id, checkout_id, owner_id, recipient_name, phone_number, country, city, street_address, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	          RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		order.ID,
		order.CheckoutID,
		order.OwnerID,
		order.RecipientName,
		order.PhoneNumber,
		order.Country,
		order.City,
		order.StreetAddress,
	).Scan(&order.CreatedAt)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error) {
	query := `SELECT id, checkout_id, owner_id, recipient_name, phone_number, country, city, street_address, created_at
	          FROM orders WHERE checkout_id = $1`

	var order domain.Order
	err := r.db.QueryRowContext(ctx, query, checkoutID).Scan(
		&order.ID,
		&order.CheckoutID,
		&order.OwnerID,
		&order.RecipientName,
		&order.PhoneNumber,
		&order.Country,
		&order.City,
		&order.StreetAddress,
		&order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) || pqCode(err) == invalidTextRepresentation {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by checkout id: %w", err)
	}
	return &order, nil
}

// CreateOrderLine writes a line at most once per (order, cart item). Repeating the call returns the stored line id.
func (r *Repository) CreateOrderLine(ctx context.Context, line *domain.OrderLine) error {
	query := `INSERT INTO order_lines (order_id, cart_item_id, product_id, option_selector, quantity)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (order_id, cart_item_id) DO NOTHING
	          RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		line.OrderID,
		line.CartItemID,
		line.ProductID,
		line.Option,
		line.Quantity,
	).Scan(&line.ID)
	if errors.Is(err, sql.ErrNoRows) {
		existing := `SELECT id FROM order_lines WHERE order_id = $1 AND cart_item_id = $2`
		if err := r.db.QueryRowContext(ctx, existing, line.OrderID, line.CartItemID).Scan(&line.ID); err != nil {
			return fmt.Errorf("query existing order line: %w", err)
		}
		return nil
	}
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return ErrOrderNotFound
		}
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func (r *Repository) ListOrderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	query := `SELECT id, order_id, cart_item_id, product_id, option_selector, quantity
	          FROM order_lines WHERE order_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		var option sql.NullString
		if err := rows.Scan(&line.ID, &line.OrderID, &line.CartItemID, &line.ProductID, &option, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line row: %w", err)
		}
		if option.Valid {
			line.Option = &option.String
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}
