package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormall/backend/internal/domain"
)

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	require.NoError(t, c.Set(context.Background(), "k", &domain.SalesLeaders{}, time.Minute))

	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Delete(context.Background(), "k"))
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("VENDORMALL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set VENDORMALL_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	client := NewRedisClient(addr, os.Getenv("VENDORMALL_TEST_REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisReportCache(client)
	require.NoError(t, c.Ping(ctx))

	key := fmt.Sprintf("test:%d", time.Now().UnixNano())
	want := &domain.SalesLeaders{
		Week:  []domain.SalesLeader{{ID: 1, Name: "Maple Crafts", ItemsSold: 3, TotalAmount: 3600}},
		Month: []domain.SalesLeader{},
		Year:  []domain.SalesLeader{},
	}
	require.NoError(t, c.Set(ctx, key, want, time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = c.Get(ctx, key+":missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Delete(ctx, key, key+":missing"))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
