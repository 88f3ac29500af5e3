package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN             string `env:"DATABASE_DSN,required=true"`
	DBMaxOpenConns          int    `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns          int    `env:"DB_MAX_IDLE_CONNS,default=5"`
	RedisURL                string `env:"REDIS_URL"`
	RabbitMQURL             string `env:"RABBITMQ_URL"`
	WebhookEndpoint         string `env:"WEBHOOK_ENDPOINT"`
	PublishConcurrency      int    `env:"PUBLISH_CONCURRENCY,default=5"`
	RateLimitPerSec         int    `env:"RATE_LIMIT_PER_SEC,default=10"`
	AutoRetry               bool   `env:"AUTO_RETRY,default=true"`
	RetryScanIntervalSec    int    `env:"RETRY_SCAN_INTERVAL_SEC,default=30"`
	RetryScanLimit          int    `env:"RETRY_SCAN_LIMIT,default=100"`
	ApprovalScanIntervalSec int    `env:"APPROVAL_SCAN_INTERVAL_SEC,default=300"`
	APIPort                 int    `env:"API_PORT,default=8080"`
	LogLevel                string `env:"LOG_LEVEL,default=info"`
	LogFile                 string `env:"LOG_FILE"`
	LogMaxSizeMB            int    `env:"LOG_MAX_SIZE_MB,default=100"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}

	positive := []struct {
		name  string
		value int
	}{
		{"DB_MAX_OPEN_CONNS", c.DBMaxOpenConns},
		{"DB_MAX_IDLE_CONNS", c.DBMaxIdleConns},
		{"PUBLISH_CONCURRENCY", c.PublishConcurrency},
		{"RATE_LIMIT_PER_SEC", c.RateLimitPerSec},
		{"RETRY_SCAN_INTERVAL_SEC", c.RetryScanIntervalSec},
		{"RETRY_SCAN_LIMIT", c.RetryScanLimit},
		{"APPROVAL_SCAN_INTERVAL_SEC", c.ApprovalScanIntervalSec},
		{"API_PORT", c.APIPort},
		{"LOG_MAX_SIZE_MB", c.LogMaxSizeMB},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) RetryScanInterval() time.Duration {
	return time.Duration(c.RetryScanIntervalSec) * time.Second
}

func (c *Config) ApprovalScanInterval() time.Duration {
	return time.Duration(c.ApprovalScanIntervalSec) * time.Second
}
