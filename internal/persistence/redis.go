package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/config"
)

const redisPingTimeout = 3 * time.Second

// Redis holds the client shared by the triage queue and readiness checks.
// A single address gives a plain client, several give a cluster client, and a
// master name switches to sentinel failover.
type Redis struct {
	Client redis.UniversalClient
}

// NewRedis builds the client and pings it once. An unreachable server is
// logged, not fatal: the queue retries on every dequeue.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      cfg.Addrs(),
		MasterName: cfg.MasterName,
		Password:   cfg.Password,
		DB:         cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Strings("addrs", cfg.Addrs()), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.Strings("addrs", cfg.Addrs()))
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
