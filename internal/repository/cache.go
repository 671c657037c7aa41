package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rentalytics/rei-gateway/internal/model"
)

// CacheRepository fronts the upstream API with Redis. Expiry is enforced by
// the store (SET with TTL); the gateway never purges entries itself.
type CacheRepository interface {
	// Get returns nil on a miss.
	Get(ctx context.Context, key string) (*model.CacheItem, error)
	Put(ctx context.Context, item model.CacheItem, ttl time.Duration) error
}

type CacheRepositoryImpl struct {
	rdb    *redis.Client
	prefix string
}

func NewCacheRepository(rdb *redis.Client) *CacheRepositoryImpl {
	return &CacheRepositoryImpl{rdb: rdb, prefix: "cache:"}
}

var _ CacheRepository = (*CacheRepositoryImpl)(nil)

func (r *CacheRepositoryImpl) Get(ctx context.Context, key string) (*model.CacheItem, error) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var item model.CacheItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *CacheRepositoryImpl) Put(ctx context.Context, item model.CacheItem, ttl time.Duration) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.prefix+item.Key, raw, ttl).Err()
}
