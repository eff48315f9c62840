package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aimon/pkg/retry"
)

// NewRedisClient creates a pooled client and verifies connectivity. The ping
// is retried with backoff so a gateway restarting alongside Redis in the same
// compose stack does not lose the race.
func NewRedisClient(address, password string, db, poolSize int, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, func(attempt int) error {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed",
				zap.Int("attempt", attempt),
				zap.String("address", address),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", address, err)
	}

	logger.Info("connected to Redis",
		zap.String("address", address),
		zap.Int("db", db),
		zap.Int("pool_size", poolSize))

	return client, nil
}
