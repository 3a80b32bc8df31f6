// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	App           App
	DB            DB
	Redis         Redis
	Notifications Notifications
	Polls         Polls
	HTTP          HTTP
}

type App struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c App) IsDevEnvironment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

type DB struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN             string        `env:"DB_DSN" envDefault:"file:polls.db?_busy_timeout=5000"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	SlowThreshold   time.Duration `env:"DB_SLOW_THRESHOLD" envDefault:"1s"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
}

type Notifications struct {
	Backend          string        `env:"NOTIFY_BACKEND" envDefault:"log"`
	RedisQueue       string        `env:"NOTIFY_REDIS_QUEUE" envDefault:"poll_notifications"`
	RocketNameServer []string      `env:"ROCKETMQ_NAMESRV_ADDR" envSeparator:","`
	RocketGroup      string        `env:"ROCKETMQ_GROUP" envDefault:"poll_notification_producer"`
	RocketTopic      string        `env:"ROCKETMQ_TOPIC" envDefault:"poll_notifications"`
	SendTimeout      time.Duration `env:"ROCKETMQ_SEND_TIMEOUT" envDefault:"10s"`
	MaxRetries       uint64        `env:"NOTIFY_MAX_RETRIES" envDefault:"3"`
	MaxRetryElapsed  time.Duration `env:"NOTIFY_MAX_RETRY_ELAPSED" envDefault:"30s"`
}

type Polls struct {
	AllowRevealAfterClose bool          `env:"POLL_ALLOW_REVEAL_AFTER_CLOSE" envDefault:"true"`
	ClosingSoonLead       time.Duration `env:"POLL_CLOSING_SOON_LEAD" envDefault:"24h"`
	ClosingSoonRecency    time.Duration `env:"POLL_CLOSING_SOON_RECENCY" envDefault:"24h"`
	CheckInterval         time.Duration `env:"POLL_CHECK_INTERVAL" envDefault:"1m"`
	LockExpiry            time.Duration `env:"POLL_LOCK_EXPIRY" envDefault:"10s"`
	ResultsCacheSize      int           `env:"POLL_RESULTS_CACHE_SIZE" envDefault:"1024"`
	ResultsCacheTTL       time.Duration `env:"POLL_RESULTS_CACHE_TTL" envDefault:"0s"`
}

type HTTP struct {
	Port         int      `env:"PORT" envDefault:"8080"`
	AllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RateLimit    float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateBurst    int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
}

func (c HTTP) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Polls.ClosingSoonLead <= 0 {
		return Config{}, fmt.Errorf("POLL_CLOSING_SOON_LEAD must be positive")
	}
	return cfg, nil
}
