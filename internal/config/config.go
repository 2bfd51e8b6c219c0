package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	RedisURL string `env:"REDIS_URL,required=true"`

	// When FCM_PROJECT_ID is empty the service falls back to the webhook
	// gateway, which then becomes required.
	FCMProjectID       string `env:"FCM_PROJECT_ID"`
	FCMCredentialsJSON string `env:"FCM_CREDENTIALS_JSON"`
	WebhookGatewayURL  string `env:"WEBHOOK_GATEWAY_URL"`

	MaxTokensPerRequest int `env:"MAX_TOKENS_PER_REQUEST,default=500"`
	MaxBatchSize        int `env:"MAX_BATCH_SIZE,default=100"`
	BatchConcurrency    int `env:"BATCH_CONCURRENCY,default=1"`

	NotificationTimeoutSec int `env:"NOTIFICATION_TIMEOUT_SEC,default=30"`
	StatusTTLSec           int `env:"STATUS_TTL_SEC,default=3600"`
	RateLimitPerSec        int `env:"RATE_LIMIT_PER_SEC,default=100"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.FCMProjectID == "" && cfg.WebhookGatewayURL == "" {
		return nil, fmt.Errorf("either FCM_PROJECT_ID or WEBHOOK_GATEWAY_URL must be set")
	}

	return &cfg, nil
}

func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.NotificationTimeoutSec) * time.Second
}

func (c *Config) StatusTTL() time.Duration {
	return time.Duration(c.StatusTTLSec) * time.Second
}
