package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/odin-pos/internal/domain/sale"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*CloseoutCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCloseoutCache(client, ttl), mr
}

func TestCloseoutCache_SetGet(t *testing.T) {
	cache, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)

	_, ok, err := cache.Get(ctx, day)
	require.NoError(t, err)
	assert.False(t, ok)

	want := &sale.Closeout{
		Date:       day,
		SalesCount: 3,
		ItemsQty:   7,
		Total:      decimal.RequireFromString("35.90"),
		TotalCash:  decimal.RequireFromString("14.60"),
		TotalCard:  decimal.RequireFromString("21.30"),
	}
	require.NoError(t, cache.Set(ctx, want))
	assert.True(t, mr.Exists("pos:closeout:2026-02-04"))
	assert.Equal(t, time.Hour, mr.TTL("pos:closeout:2026-02-04"))

	got, ok, err := cache.Get(ctx, day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, day.Equal(got.Date))
	assert.Equal(t, 3, got.SalesCount)
	assert.Equal(t, 7, got.ItemsQty)
	assert.True(t, want.Total.Equal(got.Total))
	assert.True(t, want.TotalCash.Equal(got.TotalCash))
	assert.True(t, want.TotalCard.Equal(got.TotalCard))
}

func TestCloseoutCache_Expiry(t *testing.T) {
	cache, mr := setupTestRedis(t, time.Minute)
	ctx := context.Background()
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Set(ctx, &sale.Closeout{Date: day}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, day)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseoutCache_CorruptEntry(t *testing.T) {
	cache, mr := setupTestRedis(t, 0)
	require.NoError(t, mr.Set("pos:closeout:2026-02-04", "not json"))

	_, _, err := cache.Get(context.Background(), time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestCloseoutCache_ServerDown(t *testing.T) {
	cache, mr := setupTestRedis(t, 0)
	mr.Close()

	_, _, err := cache.Get(context.Background(), time.Now())
	require.Error(t, err)
	require.Error(t, cache.Set(context.Background(), &sale.Closeout{Date: time.Now()}))
}
