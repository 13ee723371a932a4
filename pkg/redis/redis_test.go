package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")
	cfg := ClientRateLimit("127.0.0.1", 5, time.Second)

	// When Redis is disabled, all requests should be allowed
	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 5, remaining)
	assert.Equal(t, "api:127.0.0.1", cfg.Key)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", "v", TTLShort))

	calls := 0
	err = cache.GetOrSet(ctx, "key", &result, TTLShort, func() (interface{}, error) {
		calls++
		return "computed", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "computed", result)
	assert.Equal(t, 1, calls)
}

func TestCacheKeys(t *testing.T) {
	hash := "0123456789abcdef0123"
	assert.Equal(t, "gate:0123456789ab:g1:SECTOR_TECHNOLOGY:2024-01-15", GateKey(hash, 1, "SECTOR_TECHNOLOGY", "2024-01-15"))
	assert.Equal(t, "gate:abc:g7:SECTOR_X:2024-01-15", GateKey("abc", 7, "SECTOR_X", "2024-01-15"))
}
