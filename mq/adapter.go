package mq

import (
	"fmt"

	"poll-decision-backend/cache"

	"go.uber.org/zap"
)

// Backends accepted by NewDispatcher.
const (
	BackendLog      = "log"
	BackendRedis    = "redis"
	BackendRocketMQ = "rocketmq"
)

// Config selects and configures the outbound queue.
type Config struct {
	Backend    string
	RedisQueue string
	RocketMQ   RocketMQConfig
}

// NewDispatcher builds the configured dispatcher. redis may be nil unless the
// redis backend is selected.
func NewDispatcher(cfg Config, redis cache.RedisClient, log *zap.Logger) (Dispatcher, error) {
	switch cfg.Backend {
	case "", BackendLog:
		return NewLogDispatcher(log), nil
	case BackendRedis:
		if redis == nil {
			return nil, fmt.Errorf("redis notification backend: %w", cache.ErrRedisNotAvailable)
		}
		return NewRedisDispatcher(redis, cfg.RedisQueue, log), nil
	case BackendRocketMQ:
		return NewRocketMQDispatcher(cfg.RocketMQ, log)
	default:
		return nil, fmt.Errorf("unknown notification backend %q", cfg.Backend)
	}
}
