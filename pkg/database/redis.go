package database

import (
	"context"
	"fmt"
	"github.com/Geniuskaa/participant_registry/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisCreation builds a client from conf.Redis and checks it answers.
func RedisCreation(ctx context.Context, conf *config.Entity) (*redis.Client, error) {
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("redisCreation failed: %w", err)
	}
	if conf.Redis.PoolSize > 0 {
		opts.PoolSize = conf.Redis.PoolSize
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisCreation failed: %w", err)
	}

	return client, nil
}
