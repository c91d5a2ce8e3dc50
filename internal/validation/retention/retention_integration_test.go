//go:build integration

package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritax/pkg/testutil/containers"
)

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	cache, err := NewRedisCache(rc.Client, time.Second)
	require.NoError(t, err)

	require.NoError(t, cache.Put(ctx, "r1", cachedRun{Status: "invalid", FactCount: 3}))

	var got cachedRun
	ok, err := cache.Get(ctx, "r1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "invalid", got.Status)

	time.Sleep(1500 * time.Millisecond)
	ok, err = cache.Get(ctx, "r1", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_RejectsZeroTTL(t *testing.T) {
	_, err := NewRedisCache(nil, 0)
	assert.Error(t, err)
}
