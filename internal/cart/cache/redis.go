package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:     client,
		baseTTL:    10 * time.Minute,
		versionTTL: 24 * time.Hour,
	}
}

type RedisCache struct {
	client     *redis.Client
	baseTTL    time.Duration
	versionTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	data, err := r.client.Get(ctx, cacheKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []domain.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart items failed: %w", err)
	}
	return items, nil
}

func (r RedisCache) Version(ctx context.Context, ownerID string) (int64, error) {
	version, err := r.client.Get(ctx, versionKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return version, nil
}

// SetIfVersion stores items unless the cart was invalidated after version was read.
// A skipped write is not an error.
func (r RedisCache) SetIfVersion(ctx context.Context, ownerID string, version int64, items []domain.CartItem) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart items failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(3)) * time.Minute
	verKey := versionKey(ownerID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(ownerID), payload, r.baseTTL+jitter)
			return nil
		})
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, ownerID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(ownerID))
		pipe.Expire(ctx, versionKey(ownerID), r.versionTTL)
		pipe.Del(ctx, cacheKey(ownerID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(ownerID string) string {
	return fmt.Sprintf("cart:%s", ownerID)
}

func versionKey(ownerID string) string {
	return fmt.Sprintf("cart:ver:%s", ownerID)
}
