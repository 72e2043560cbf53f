package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "rbac:role_permissions:version"
	cacheKeyPrefix  = "rbac:role_permissions:v"
)

// Cache shares the stored role → permission mapping between processes.
// Entries are keyed by a version counter; bumping the counter invalidates all of them.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client yields a nil cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX keeps a concurrent Bump from being overwritten.
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Get loads the stored mapping cached at version.
func (c *Cache) Get(ctx context.Context, version int64) (map[string][]string, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, c.key(version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored map[string][]string
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// Set stores the mapping at version.
func (c *Cache) Set(ctx context.Context, version int64, stored map[string][]string) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(version), raw, c.ttl).Err()
}

// Bump invalidates every cached mapping by incrementing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) key(version int64) string {
	return cacheKeyPrefix + strconv.FormatInt(version, 10)
}
