package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledCache(t *testing.T) {
	c := New(context.Background(), "", zap.NewNop())
	assert.False(t, c.Enabled())

	var out []string
	assert.ErrorIs(t, c.Get(context.Background(), "k", &out), ErrMiss)
	assert.NoError(t, c.Set(context.Background(), "k", []string{"x"}, time.Minute))
	assert.NoError(t, c.Delete(context.Background(), "k"))
	assert.NoError(t, c.Close())
}

func TestBadURLDisables(t *testing.T) {
	c := New(context.Background(), "://nope", zap.NewNop())
	assert.False(t, c.Enabled())
}

func TestRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	c := FromClient(redis.NewClient(opt))
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	key := "test:" + time.Now().Format(time.RFC3339Nano)
	require.NoError(t, c.Set(ctx, key, map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, c.Get(ctx, key, &got))
	assert.Equal(t, 1, got["a"])

	require.NoError(t, c.Delete(ctx, key))
	assert.ErrorIs(t, c.Get(ctx, key, &got), ErrMiss)
}
