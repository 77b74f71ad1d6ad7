package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fixture-edge/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis the stores use.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// CooldownStore claims alert keys with SET NX so each key fires once per TTL,
// across processes.
type CooldownStore struct {
	redis RedisClient
}

func NewCooldownStore(client RedisClient) *CooldownStore {
	return &CooldownStore{redis: client}
}

// Acquire reports whether key was free and is now held for ttl.
func (s *CooldownStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, key, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire cooldown %s: %w", key, err)
	}
	return ok, nil
}

// LookupCache stores JSON values under a namespace.
type LookupCache struct {
	redis     RedisClient
	namespace string
}

func NewLookupCache(client RedisClient, namespace string) *LookupCache {
	return &LookupCache{redis: client, namespace: namespace}
}

func (c *LookupCache) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

// Get decodes the value at key into dest. A miss is not an error.
func (c *LookupCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *LookupCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, c.key(key), data, ttl).Err()
}

const lastSummaryKey = "cycle:last"

// SummaryCache keeps the most recent cycle summary so any replica can serve it.
type SummaryCache struct {
	lookup *LookupCache
	ttl    time.Duration
}

func NewSummaryCache(client RedisClient, ttl time.Duration) *SummaryCache {
	return &SummaryCache{lookup: NewLookupCache(client, "fixture-edge"), ttl: ttl}
}

func (c *SummaryCache) SaveSummary(ctx context.Context, s domain.CycleSummary) error {
	return c.lookup.Set(ctx, lastSummaryKey, s, c.ttl)
}

func (c *SummaryCache) LastSummary(ctx context.Context) (domain.CycleSummary, bool, error) {
	var s domain.CycleSummary
	found, err := c.lookup.Get(ctx, lastSummaryKey, &s)
	return s, found, err
}
