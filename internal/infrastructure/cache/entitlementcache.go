package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meterline/meterline/internal/domain/metering"
)

const (
	entitlementCachePrefix = "meterline:entitlement:"
	entitlementCacheTTL    = 60 * time.Second
	entitlementTTLJitter   = 0.2
)

// EntitlementCache holds resolved entitlements for the hot metering path.
// Entries are short-lived and invalidated wholesale per customer after any
// subscription mutation; the per-customer index set makes that a pipeline
// of deletes instead of a SCAN.
type EntitlementCache struct {
	client *redis.Client
}

// NewEntitlementCache creates a new EntitlementCache.
func NewEntitlementCache(client *redis.Client) *EntitlementCache {
	return &EntitlementCache{client: client}
}

func entitlementKey(customerID, featureSlug string) string {
	return entitlementCachePrefix + customerID + ":" + featureSlug
}

func entitlementIndexKey(customerID string) string {
	return entitlementCachePrefix + "idx:" + customerID
}

func (c *EntitlementCache) Get(ctx context.Context, customerID, featureSlug string) (*metering.Entitlement, error) {
	raw, err := c.client.Get(ctx, entitlementKey(customerID, featureSlug)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read entitlement cache: %w", err)
	}

	var ent metering.Entitlement
	if err := json.Unmarshal([]byte(raw), &ent); err != nil {
		return nil, nil
	}
	return &ent, nil
}

func (c *EntitlementCache) Set(ctx context.Context, ent *metering.Entitlement) error {
	raw, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement: %w", err)
	}

	key := entitlementKey(ent.CustomerID, ent.FeatureSlug)
	idx := entitlementIndexKey(ent.CustomerID)
	ttl := jitterTTL(entitlementCacheTTL, entitlementTTLJitter)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, raw, ttl)
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, entitlementCacheTTL*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write entitlement cache: %w", err)
	}
	return nil
}

func (c *EntitlementCache) InvalidateCustomer(ctx context.Context, customerID string) error {
	idx := entitlementIndexKey(customerID)

	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read entitlement index: %w", err)
	}

	pipe := c.client.Pipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate entitlement cache: %w", err)
	}
	return nil
}
