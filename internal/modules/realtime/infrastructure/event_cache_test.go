package infrastructure

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyFeedWs/internal/modules/realtime/domain"
)

func TestMemoryEventCacheStoresLatestAndByID(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryEventCache(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.Latest(ctx, domain.KindMarket)
	require.ErrorIs(t, err, domain.ErrEventNotFound)

	for _, id := range []string{"sydney-cbd", "parramatta"} {
		require.NoError(t, cache.Store(ctx, &domain.NormalizedEvent{Kind: domain.KindMarket, Channel: domain.ChannelMarketUpdates, ID: id}))
	}

	latest, err := cache.Latest(ctx, domain.KindMarket)
	require.NoError(t, err)
	var evt domain.NormalizedEvent
	require.NoError(t, json.Unmarshal(latest, &evt))
	assert.Equal(t, "parramatta", evt.ID)

	byID, err := cache.Get(ctx, domain.KindMarket, "sydney-cbd")
	require.NoError(t, err)
	assert.Contains(t, string(byID), `"id":"sydney-cbd"`)

	_, err = cache.Get(ctx, domain.KindProperty, "sydney-cbd")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestMemoryEventCacheExpires(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryEventCache(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Store(ctx, &domain.NormalizedEvent{Kind: domain.KindProperty, ID: "prop-1"}))
	now = now.Add(time.Minute)

	_, err := cache.Latest(ctx, domain.KindProperty)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "latest:infrastructure", latestKey(domain.KindInfrastructure))
	assert.Equal(t, "property:prop-1", entityKey(domain.KindProperty, "prop-1"))
}
