package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds every recognized runtime option. Values come from the
// environment (or an optional app.env file) with the defaults below.
type Config struct {
	AppName string `mapstructure:"APP_NAME"`
	Env     string `mapstructure:"APP_ENV"` // "production" or "development"

	HTTPAddr        string `mapstructure:"HTTP_ADDR"`
	ShutdownTimeout int    `mapstructure:"SHUTDOWN_TIMEOUT_SEC"`

	// Message queue publish API
	QueueURL       string `mapstructure:"QUEUE_URL"`
	QueueBatchURL  string `mapstructure:"QUEUE_BATCH_URL"`
	QueueToken     string `mapstructure:"QUEUE_TOKEN"`
	DefaultRetries int    `mapstructure:"DEFAULT_RETRIES"`
	PublishDelayMs int    `mapstructure:"PUBLISH_DELAY_MS"`

	// Webhook signing keys. Both checked on verification so keys can
	// rotate without a cutover gap. Missing keys fail closed outside
	// development mode.
	SigningKeyCurrent string `mapstructure:"SIGNING_KEY_CURRENT"`
	SigningKeyNext    string `mapstructure:"SIGNING_KEY_NEXT"`

	// Per-topic webhook target base, e.g. https://consumer.internal/webhooks
	TargetBaseURL string `mapstructure:"TARGET_BASE_URL"`

	// Idempotency store
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// Retention for processed-event markers. Tunable: must exceed the
	// transport's documented maximum retry horizon, which is why the
	// default is a day rather than the hour the marker actually needs.
	IdempotencyTTLHours int    `mapstructure:"IDEMPOTENCY_TTL_HOURS"`
	DeadLetterList      string `mapstructure:"DEAD_LETTER_LIST"`

	// PostgreSQL
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSL_MODE"`
}

// DevMode reports whether the service runs in the explicitly-flagged
// development mode that may fail open on unconfigured signing keys.
func (c Config) DevMode() bool {
	return c.Env == "development"
}

// IdempotencyTTL returns the retention window as a duration.
func (c Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

// PublishDelay returns the default scheduled-delivery delay.
func (c Config) PublishDelay() time.Duration {
	return time.Duration(c.PublishDelayMs) * time.Millisecond
}

// Load collects configuration from environment with defaults.
func Load(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("APP_NAME", "order-event-pipeline")
	viper.SetDefault("APP_ENV", "production")

	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("SHUTDOWN_TIMEOUT_SEC", 15)

	viper.SetDefault("QUEUE_URL", "http://localhost:9090/publish")
	viper.SetDefault("QUEUE_BATCH_URL", "")
	viper.SetDefault("QUEUE_TOKEN", "")
	viper.SetDefault("DEFAULT_RETRIES", 3)
	viper.SetDefault("PUBLISH_DELAY_MS", 0)

	viper.SetDefault("SIGNING_KEY_CURRENT", "")
	viper.SetDefault("SIGNING_KEY_NEXT", "")

	viper.SetDefault("TARGET_BASE_URL", "http://localhost:8080/webhooks")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("IDEMPOTENCY_TTL_HOURS", 24)
	viper.SetDefault("DEAD_LETTER_LIST", "deadletter")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "pipeline")
	viper.SetDefault("DB_PASSWORD", "pipeline")
	viper.SetDefault("DB_NAME", "pipeline")
	viper.SetDefault("DB_SSL_MODE", "disable")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Info().Msg("no config file found, using environment variables and defaults")
			err = nil
		} else {
			log.Error().Err(err).Msg("error reading config file")
			return
		}
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	err = viper.Unmarshal(&config)
	return
}
