//go:build integration
// +build integration

package transform_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ahrav/go-dldprompt/internal/transform"
)

func TestCacheMiddleware_Redis(t *testing.T) {
	ctx := context.Background()

	container, err := redisContainer.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})
	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	var calls atomic.Int32
	provider := transform.Func(func(_ context.Context, text string, _ transform.Params) (string, error) {
		calls.Add(1)
		return "optimized: " + text, nil
	})
	tr := transform.NewCacheMiddleware(client, "it", time.Minute, nil, nil)(provider)

	p := transform.Params{Model: "m", Directives: []string{"be concise"}}
	for range 3 {
		out, err := tr.Transform(ctx, "draft", p)
		require.NoError(t, err)
		assert.Equal(t, "optimized: draft", out)
	}
	assert.Equal(t, int32(1), calls.Load(), "repeat calls are served from redis")

	ttl, err := client.TTL(ctx, "it:"+transform.CacheKey("draft", p)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = tr.Transform(ctx, "draft", transform.Params{Model: "other"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "different params miss the cache")
}
