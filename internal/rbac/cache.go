package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "rbac:version"

// Cache stores resolved role/permission lookups in Redis behind a version
// counter. Invalidate bumps the version, which orphans every key written
// under the previous one; stale entries expire via TTL. There is no
// ambient process-wide cache: every mutating role/permission operation
// calls Invalidate on this object.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client degrades every
// lookup to the loader.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchStrings loads a cached string slice or populates it via the loader.
func (c *Cache) FetchStrings(ctx context.Context, key string, loader func(context.Context) ([]string, error)) ([]string, error) {
	if loader == nil {
		return nil, errors.New("rbac: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	versioned, err := c.buildKey(ctx, key)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, versioned).Bytes()
	if err == nil {
		var values []string
		if err := json.Unmarshal(payload, &values); err == nil {
			return values, nil
		}
		// Fall through to the loader on a corrupt entry.
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}
	values, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, versioned, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// Invalidate bumps the version so previously resolved lookups are never
// served again.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) buildKey(ctx context.Context, key string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", key, ver), nil
}

func keyUserRoles(userID int64) string {
	return fmt.Sprintf("rbac:user_roles:%d", userID)
}

func keyUserPermissions(userID int64) string {
	return fmt.Sprintf("rbac:user_perms:%d", userID)
}

const (
	keyCatalogRoles       = "rbac:catalog:roles"
	keyCatalogPermissions = "rbac:catalog:perms"
)
