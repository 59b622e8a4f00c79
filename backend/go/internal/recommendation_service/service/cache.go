package service

import (
	"context"
	"errors"
	"time"

	"foodietrack/backend/go/pkg/lru"

	"github.com/go-redis/redis/v8"
)

// Cache 保存已打分的候选列表。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache 是基于 Redis 的 Cache 实现。
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache 创建 Redis 缓存，所有键都带有 prefix 前缀。
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Get 读取缓存，未命中时返回 (nil, false, nil)。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set 写入缓存。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// MemoryCache 是未配置 Redis 时使用的进程内缓存，按字节数限制大小。
type MemoryCache struct {
	entries *lru.Cache[string, []byte]
}

// NewMemoryCache 创建最多占用 maxBytes 字节的进程内缓存。
func NewMemoryCache(maxBytes int) (*MemoryCache, error) {
	entries, err := lru.New[string, []byte](lru.Config{MaxWeight: maxBytes})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{entries: entries}, nil
}

// Get 读取缓存。
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.entries.Get(key)
	return v, ok, nil
}

// Set 写入缓存。
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.entries.Put(key, value, len(key)+len(value), ttl)
	return nil
}
