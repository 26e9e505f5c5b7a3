// Package jobcache provides a Redis read-through cache for owner history on top of a job store
package jobcache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/go-redis/redis/v8"
	"github.com/wb-go/wbf/zlog"
)

// Store is the job store being decorated.
type Store interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Job, error)
	Delete(ctx context.Context, id string) error
}

// Cache abstracts the Redis hash operations used by the decorator.
type Cache interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Version(ctx context.Context, key string) (int64, error)
	Bump(ctx context.Context, key string) error
}

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) HGet(ctx context.Context, key, field string) (string, error) {
	return c.client.HGet(ctx, key, field).Result()
}

func (c *RedisCache) HSet(ctx context.Context, key, field, value string, ttl time.Duration) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, value)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Version reads a counter key; a missing key is version 0.
func (c *RedisCache) Version(ctx context.Context, key string) (int64, error) {
	v, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisCache) Bump(ctx context.Context, key string) error {
	return c.client.Incr(ctx, key).Err()
}

// CachedRepo caches ListByOwner per (owner, version, limit); writes bump the owner's version
// and drop the whole hash. A list that read the store before a write stores its result under
// the old version, which no reader asks for anymore.
type CachedRepo struct {
	store Store
	cache Cache
	ttl   time.Duration
}

func New(store Store, cache Cache, ttl time.Duration) *CachedRepo {
	return &CachedRepo{store: store, cache: cache, ttl: ttl}
}

func historyKey(ownerID string) string {
	return "colorizations:" + ownerID
}

func versionKey(ownerID string) string {
	return "colorizations-version:" + ownerID
}

func (c *CachedRepo) Create(ctx context.Context, job *model.Job) error {
	if err := c.store.Create(ctx, job); err != nil {
		return err
	}
	c.invalidate(ctx, job.OwnerID)
	return nil
}

func (c *CachedRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	return c.store.Get(ctx, id)
}

func (c *CachedRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Job, error) {
	version, err := c.cache.Version(ctx, versionKey(ownerID))
	if err != nil {
		// без версии кэш не трогаем совсем
		zlog.Logger.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to read history cache version")
		return c.store.ListByOwner(ctx, ownerID, limit)
	}
	key := historyKey(ownerID)
	field := strconv.FormatInt(version, 10) + ":" + strconv.Itoa(limit)

	cached, err := c.cache.HGet(ctx, key, field)
	switch {
	case err == nil:
		var jobs []model.Job
		if uErr := json.Unmarshal([]byte(cached), &jobs); uErr == nil && jobs != nil {
			return jobs, nil
		}
		zlog.Logger.Warn().Str("owner_id", ownerID).Msg("Failed to decode cached history, falling back to store")
	case !errors.Is(err, redis.Nil):
		zlog.Logger.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to read history cache")
	}

	jobs, err := c.store.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(jobs)
	if err != nil {
		return jobs, nil
	}
	if err := c.cache.HSet(ctx, key, field, string(payload), c.ttl); err != nil {
		zlog.Logger.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to write history cache")
	}
	return jobs, nil
}

func (c *CachedRepo) Delete(ctx context.Context, id string) error {
	// владелец нужен для инвалидации, поэтому сначала читаем запись
	job, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, job.OwnerID)
	return nil
}

func (c *CachedRepo) invalidate(ctx context.Context, ownerID string) {
	if err := c.cache.Bump(ctx, versionKey(ownerID)); err != nil {
		zlog.Logger.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to bump history cache version")
	}
	if err := c.cache.Del(ctx, historyKey(ownerID)); err != nil {
		zlog.Logger.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to invalidate history cache")
	}
}
