package database

import (
	"context"
	"fmt"
	"log"
	"retest_backend/internal/config"

	"github.com/go-redis/redis/v8"
)

// InitRedis 未启用 redis 时返回 nil，调用方把 nil 当作不使用缓存
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		log.Println("Redis disabled, summary cache off")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 5,
	})

	ctx := context.Background()
	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}

	log.Println("Redis connection established")
	return rdb, nil
}
