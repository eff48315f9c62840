package signaling

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aimon/internal/core/ports"
	"aimon/internal/infrastructure/push"
	"aimon/internal/infrastructure/signaling/memory"
	redischan "aimon/internal/infrastructure/signaling/redis"
	"aimon/pkg/config"
)

// Factory builds the signaling channel and token store backends. With Redis
// enabled and reachable every gateway instance shares state; otherwise the
// in-process implementations serve a single node.
type Factory struct {
	useRedis    bool
	redisClient *goredis.Client
	logger      *zap.Logger
}

func NewFactory(cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	f := &Factory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redischan.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warn("failed to connect to Redis, falling back to in-memory signaling",
				zap.Error(err))
			f.useRedis = false
		} else {
			f.redisClient = client
		}
	}

	if f.useRedis {
		logger.Info("using Redis signaling backend")
	} else {
		logger.Info("using in-memory signaling backend")
	}
	return f, nil
}

func (f *Factory) CreateChannel() ports.SignalingChannel {
	if f.useRedis && f.redisClient != nil {
		return redischan.NewChannel(f.redisClient, f.logger)
	}
	return memory.NewChannel(f.logger)
}

func (f *Factory) CreateTokenStore() ports.TokenStore {
	if f.useRedis && f.redisClient != nil {
		return push.NewRedisTokenStore(f.redisClient)
	}
	return push.NewMemoryTokenStore()
}

func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}

func (f *Factory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}
