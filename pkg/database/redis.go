package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"astroconnect/internal/config"

	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	once   sync.Once
)

// InitRedis initializes the Redis connection used for gateway state.
func InitRedis(cfg config.RedisConfig) error {
	var err error

	once.Do(func() {
		err = connectToRedis(cfg)
	})

	return err
}

// connectToRedis establishes the connection and verifies it with a ping.
func connectToRedis(cfg config.RedisConfig) error {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		// Fall back to treating the value as a plain address
		opts = &redis.Options{Addr: cfg.URL}
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MaxRetries = 3

	client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("Connected to Redis db %d", cfg.DB)

	return nil
}

// GetClient returns the Redis client instance.
func GetClient() *redis.Client {
	if client == nil {
		log.Fatal("Redis not initialized. Call InitRedis first.")
	}
	return client
}

// HealthCheck verifies the Redis connection is alive.
func HealthCheck() error {
	if client == nil {
		return fmt.Errorf("redis not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
