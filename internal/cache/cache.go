// Package cache is a thin JSON layer over Redis. A Cache built without a reachable
// server is disabled: reads miss and writes are dropped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var ErrMiss = errors.New("cache miss")

type Cache struct {
	client *redis.Client
	prefix string
}

// New connects to url. An empty url or a failed ping yields a disabled cache.
func New(ctx context.Context, url string, log *zap.Logger) *Cache {
	c := &Cache{prefix: "grandbridge:"}
	if url == "" {
		log.Info("redis disabled")
		return c
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("redis url invalid, cache disabled", zap.Error(err))
		return c
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis connection failed, cache disabled", zap.Error(err))
		_ = client.Close()
		return c
	}
	log.Info("connected to redis", zap.String("addr", opt.Addr))
	c.client = client
	return c
}

// FromClient wraps an existing client.
func FromClient(client *redis.Client) *Cache {
	return &Cache{client: client, prefix: "grandbridge:"}
}

func (c *Cache) Enabled() bool { return c != nil && c.client != nil }

func (c *Cache) Get(ctx context.Context, key string, dst any) error {
	if !c.Enabled() {
		return ErrMiss
	}
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, b, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.client.Del(ctx, full...).Err()
}

func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
