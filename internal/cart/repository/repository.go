package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/domain"
)

var ErrItemNotFound = errors.New("item not found in cart")

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	ListItems(ctx context.Context, ownerID string) ([]domain.CartItem, error)
	AddItem(ctx context.Context, item domain.CartItem) (*domain.CartItem, error)
	DeleteItem(ctx context.Context, ownerID, itemID string) error
}
