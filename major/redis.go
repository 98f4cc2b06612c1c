package major

import (
	"context"
	"fmt"
	"time"

	"live-notify-service/conf"

	"github.com/redis/go-redis/v9"
)

var rdb *redis.Client

// OpenRedis 连接并 ping Redis，未启用时返回 (nil, nil)
func OpenRedis(ctx context.Context) (*redis.Client, error) {
	if !conf.RedisEnabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	rdb = client
	return client, nil
}

func GetRedis() *redis.Client {
	return rdb
}
