package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*LevelCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLevelCache(client, time.Minute), mr
}

func TestLevelCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, 1, 2, 3)
	require.NoError(t, err)
	require.False(t, ok)

	level := ProductStock{TenantID: 1, BranchID: 2, ProductID: 3, QtyOnHand: 42}
	require.NoError(t, cache.Set(ctx, level))

	got, ok, err := cache.Get(ctx, 1, 2, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, got.QtyOnHand)

	require.NoError(t, cache.Invalidate(ctx, 1, 2, 3))
	_, ok, err = cache.Get(ctx, 1, 2, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLevelCacheInvalidateBranch(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, ProductStock{TenantID: 1, BranchID: 2, ProductID: 3, QtyOnHand: 1}))
	require.NoError(t, cache.Set(ctx, ProductStock{TenantID: 1, BranchID: 2, ProductID: 4, QtyOnHand: 2}))
	require.NoError(t, cache.Set(ctx, ProductStock{TenantID: 1, BranchID: 9, ProductID: 3, QtyOnHand: 3}))

	require.NoError(t, cache.InvalidateBranch(ctx, 1, 2))

	_, ok, err := cache.Get(ctx, 1, 2, 3)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = cache.Get(ctx, 1, 2, 4)
	require.NoError(t, err)
	require.False(t, ok)
	got, ok, err := cache.Get(ctx, 1, 9, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 3, got.QtyOnHand)
}
