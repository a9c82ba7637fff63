package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

const keyPrefix = "paperfeeds:search:"

// redisCmdable is the slice of *redis.Client used by Redis.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Redis is a SearchCache backed by go-redis with a fixed TTL.
type Redis struct {
	rdb redisCmdable
	ttl time.Duration
}

// NewRedis connects a go-redis client to addr.
func NewRedis(addr string, ttl time.Duration) (*Redis, *redis.Client) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return NewRedisWithClient(rdb, ttl), rdb
}

// NewRedisWithClient wraps an existing client (primarily for testing).
func NewRedisWithClient(rdb redisCmdable, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// Get loads cached results for query.
func (r *Redis) Get(ctx context.Context, query string) ([]feeds.NewJournal, bool, error) {
	raw, err := r.rdb.Get(ctx, keyPrefix+NormalizeQuery(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var journals []feeds.NewJournal
	if err := json.Unmarshal(raw, &journals); err != nil {
		return nil, false, fmt.Errorf("decode cached search: %w", err)
	}
	return journals, true, nil
}

// Set stores results for query with the configured TTL.
func (r *Redis) Set(ctx context.Context, query string, journals []feeds.NewJournal) error {
	payload, err := json.Marshal(journals)
	if err != nil {
		return fmt.Errorf("encode search: %w", err)
	}
	if err := r.rdb.Set(ctx, keyPrefix+NormalizeQuery(query), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
