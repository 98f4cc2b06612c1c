package cache_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"live-notify-service/models"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache 缓存不会再变化的历史页
type HistoryCache interface {
	BuildKey(conversationID, cursor, direction string, limit int) string
	Get(ctx context.Context, key string) (*models.MessagePage, error)
	Set(ctx context.Context, key string, page *models.MessagePage, ttl time.Duration) error
}

type RedisHistoryCache struct {
	client *redis.Client
	prefix string
}

func NewRedisHistoryCache(client *redis.Client, prefix string) *RedisHistoryCache {
	if prefix == "" {
		prefix = "live:history"
	}
	return &RedisHistoryCache{client: client, prefix: prefix}
}

func (c *RedisHistoryCache) BuildKey(conversationID, cursor, direction string, limit int) string {
	if cursor == "" {
		cursor = "start"
	}
	return fmt.Sprintf("%s:%s:%s:%s:%d", c.prefix, conversationID, cursor, direction, limit)
}

func (c *RedisHistoryCache) Get(ctx context.Context, key string) (*models.MessagePage, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var page models.MessagePage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &page, nil
}

func (c *RedisHistoryCache) Set(ctx context.Context, key string, page *models.MessagePage, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// NopHistoryCache 未启用 Redis 时使用，查询总是未命中
type NopHistoryCache struct{}

func (NopHistoryCache) BuildKey(conversationID, cursor, direction string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d", conversationID, cursor, direction, limit)
}

func (NopHistoryCache) Get(context.Context, string) (*models.MessagePage, error) {
	return nil, ErrCacheMiss
}

func (NopHistoryCache) Set(context.Context, string, *models.MessagePage, time.Duration) error {
	return nil
}
