package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cart/cache"
	"github.com/fjod/go_cart/storefront/internal/cart/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidItem = errors.New("cart item requires product id and positive quantity")

type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	log   *zap.Logger
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, log *zap.Logger) *CartService {
	return &CartService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Items returns the owner's cart for display, served from cache when possible.
func (s *CartService) Items(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	v, err, _ := s.sfg.Do(ownerID, func() (interface{}, error) {
		items, err := s.cache.Get(ctx, ownerID)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get error", zap.String("owner_id", ownerID), zap.Error(err))
		}

		// read before the store so an invalidation in between wins over this fill
		version, errVer := s.cache.Version(ctx, ownerID)
		if errVer != nil {
			s.log.Warn("cache version error", zap.String("owner_id", ownerID), zap.Error(errVer))
		}

		items, err = s.repo.ListItems(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if errVer != nil {
			return items, nil
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.SetIfVersion(ctx, ownerID, version, items); errSet != nil {
				s.log.Warn("cache set error", zap.String("owner_id", ownerID), zap.Error(errSet))
			}
		}()

		return items, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]domain.CartItem), nil
}

// Snapshot reads the owner's cart straight from the store. Checkout must never act on a cached view.
func (s *CartService) Snapshot(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	return s.repo.ListItems(ctx, ownerID)
}

func (s *CartService) AddItem(ctx context.Context, item domain.CartItem) (*domain.CartItem, error) {
	if item.ProductID == "" || item.Quantity <= 0 {
		return nil, ErrInvalidItem
	}

	added, err := s.repo.AddItem(ctx, item)
	if err != nil {
		s.log.Error("repo add item error", zap.String("owner_id", item.OwnerID), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(item.OwnerID)
	return added, nil
}

func (s *CartService) DeleteItem(ctx context.Context, ownerID, itemID string) error {
	err := s.repo.DeleteItem(ctx, ownerID, itemID)
	if err != nil && !errors.Is(err, repository.ErrItemNotFound) {
		return err
	}

	s.invalidateCache(ownerID)
	return err
}

func (s *CartService) invalidateCache(ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, ownerID); err != nil {
		s.log.Warn("cache invalidate error", zap.String("owner_id", ownerID), zap.Error(err))
	}
}
