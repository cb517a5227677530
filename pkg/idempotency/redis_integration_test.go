//go:build integration

package idempotency_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ourstore/storefront/pkg/idempotency"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	addr, err := c.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStoreReplaysAcrossInstances(t *testing.T) {
	rdb := redisClient(t)
	next := &counted{status: http.StatusCreated}

	// Two middleware instances model two API replicas sharing Redis.
	a := idempotency.Middleware(idempotency.NewRedisStore(rdb), time.Minute)(next)
	b := idempotency.Middleware(idempotency.NewRedisStore(rdb), time.Minute)(next)

	first := post(a, "shared", `{"items":[1]}`)
	second := post(b, "shared", `{"items":[1]}`)

	assert.EqualValues(t, 1, next.calls.Load())
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(idempotency.ReplayedHeader))
}

func TestRedisStoreReleaseAllowsRetry(t *testing.T) {
	rdb := redisClient(t)
	store := idempotency.NewRedisStore(rdb)
	ctx := context.Background()

	_, fresh, err := store.Reserve(ctx, "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	rec, fresh, err := store.Reserve(ctx, "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.False(t, rec.Done)

	require.NoError(t, store.Release(ctx, "k"))
	_, fresh, err = store.Reserve(ctx, "k", "fp", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}
