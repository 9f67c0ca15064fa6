package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LevelCache keeps recently read product_stock aggregates in Redis. It is a
// read acceleration only: writers invalidate, the ledger stays the source of
// truth.
type LevelCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLevelCache constructs LevelCache.
func NewLevelCache(client *redis.Client, ttl time.Duration) *LevelCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LevelCache{client: client, ttl: ttl}
}

// Get returns the cached aggregate if present.
func (c *LevelCache) Get(ctx context.Context, tenantID, branchID, productID int64) (ProductStock, bool, error) {
	if c == nil || c.client == nil {
		return ProductStock{}, false, nil
	}
	payload, err := c.client.Get(ctx, levelKey(tenantID, branchID, productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ProductStock{}, false, nil
		}
		return ProductStock{}, false, err
	}
	var ps ProductStock
	if err := json.Unmarshal(payload, &ps); err != nil {
		return ProductStock{}, false, err
	}
	return ps, true, nil
}

// Set stores the aggregate with the configured TTL.
func (c *LevelCache) Set(ctx context.Context, ps ProductStock) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(ps)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, levelKey(ps.TenantID, ps.BranchID, ps.ProductID), payload, c.ttl).Err()
}

// Invalidate drops one cached aggregate.
func (c *LevelCache) Invalidate(ctx context.Context, tenantID, branchID, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, levelKey(tenantID, branchID, productID)).Err()
}

// InvalidateBranch drops every cached aggregate for a branch. Used by
// restores, which can touch several products in one call.
func (c *LevelCache) InvalidateBranch(ctx context.Context, tenantID, branchID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	pattern := fmt.Sprintf("stock:level:%d:%d:*", tenantID, branchID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func levelKey(tenantID, branchID, productID int64) string {
	return fmt.Sprintf("stock:level:%d:%d:%d", tenantID, branchID, productID)
}
