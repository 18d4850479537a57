package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idverify/internal/identityverification/metrics"
	"idverify/internal/identityverification/models"
	"idverify/internal/identityverification/store/configuration"
	"idverify/pkg/platform/sentinel"
)

const configDoc = `{
	"id": "5a8f5f6e-1b1c-4d6f-9f3e-7d7e4b1f6c10",
	"type": "ekyc",
	"processes": {
		"apply": {
			"execution": {"type": "no_action"},
			"transition": {"applying": {"any_of": [[]]}, "approved": {"any_of": []}}
		}
	}
}`

type countingSource struct {
	inner *configuration.InMemory
	calls int
}

func (c *countingSource) FindByType(ctx context.Context, tenantID, verificationType string) (*models.Configuration, error) {
	c.calls++
	return c.inner.FindByType(ctx, tenantID, verificationType)
}

func seededSource(t *testing.T) *countingSource {
	t.Helper()
	var cfg models.Configuration
	require.NoError(t, json.Unmarshal([]byte(configDoc), &cfg))
	cfg.TenantID = "tenant-a"
	cfg.CreatedAt = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	store := configuration.NewInMemory()
	require.NoError(t, store.Create(context.Background(), &cfg))
	return &countingSource{inner: store}
}

func backends(t *testing.T) map[string]Backend {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Backend{
		"local": NewLocal(time.Minute),
		"redis": NewRedis(client, time.Minute),
	}
}

func TestReadThrough(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := seededSource(t)
			m := metrics.NewWithRegisterer(prometheus.NewRegistry())
			c := New(src, backend, WithMetrics(m))

			first, err := c.FindByType(ctx, "tenant-a", "ekyc")
			require.NoError(t, err)
			second, err := c.FindByType(ctx, "tenant-a", "ekyc")
			require.NoError(t, err)

			assert.Equal(t, 1, src.calls)
			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "tenant-a", second.TenantID)
			assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
			apply, ok := second.Process("apply")
			require.True(t, ok)
			assert.Equal(t, []string{"applying", "approved"}, apply.Transition.Keys())

			assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigCache.WithLabelValues("hit")))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigCache.WithLabelValues("miss")))

			c.Invalidate(ctx, "tenant-a", "ekyc")
			_, err = c.FindByType(ctx, "tenant-a", "ekyc")
			require.NoError(t, err)
			assert.Equal(t, 2, src.calls)
		})
	}
}

func TestNotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	src := seededSource(t)
	c := New(src, NewLocal(time.Minute))

	_, err := c.FindByType(ctx, "tenant-a", "unknown")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = c.FindByType(ctx, "tenant-a", "unknown")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.Equal(t, 2, src.calls)
}

func TestRedisOutageFallsBackToSource(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	src := seededSource(t)
	c := New(src, NewRedis(client, time.Minute))

	cfg, err := c.FindByType(ctx, "tenant-a", "ekyc")
	require.NoError(t, err)
	assert.Equal(t, "ekyc", cfg.Type)
	assert.Equal(t, 1, src.calls)
}
