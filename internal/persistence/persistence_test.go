package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-mcp-server/internal/config"
)

func TestFactory(t *testing.T) {
	provider, err := New(config.StorageConfig{Mode: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryProvider{}, provider)

	provider, err = New(config.StorageConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryProvider{}, provider)

	provider, err = New(config.StorageConfig{Mode: "redis", Redis: config.RedisConfig{Addr: "localhost:6379"}})
	require.NoError(t, err)
	assert.IsType(t, &RedisProvider{}, provider)
	_ = provider.Close()

	_, err = New(config.StorageConfig{Mode: "etcd"})
	assert.Error(t, err)
}

func TestMemoryProviderRoundTrip(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	_, found, err := provider.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, provider.Set(ctx, "key", "value", 0))
	value, found, err := provider.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", value)

	require.NoError(t, provider.Delete(ctx, "key"))
	_, found, err = provider.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryProviderTTL(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	require.NoError(t, provider.Set(ctx, "ephemeral", "value", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, found, err := provider.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.False(t, found, "expired entries must not be returned")
}

func TestMemoryProviderPing(t *testing.T) {
	provider := NewMemoryProvider()
	assert.NoError(t, provider.Ping(context.Background()))
	assert.NoError(t, provider.Close())
}
