package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/domain"
)

// CartCache holds a display copy of carts. Every Delete bumps the owner's version, and
// SetIfVersion only writes while the version read before loading the items is still current.
type CartCache interface {
	Get(ctx context.Context, ownerID string) ([]domain.CartItem, error)
	Version(ctx context.Context, ownerID string) (int64, error)
	SetIfVersion(ctx context.Context, ownerID string, version int64, items []domain.CartItem) error
	Delete(ctx context.Context, ownerID string) error
}

var ErrCacheMiss = errors.New("cache miss")
