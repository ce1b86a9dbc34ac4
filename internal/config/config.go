// Package config loads typed configuration from the environment, with
// .env file support for development.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all process configuration
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Telegram credentials
	TelegramAPIID    int    `env:"TELEGRAM_API_ID"`
	TelegramAPIHash  string `env:"TELEGRAM_API_HASH"`
	TelegramPhone    string `env:"TELEGRAM_PHONE"`
	TelegramPassword string `env:"TELEGRAM_PASSWORD"` // 2FA secret, optional
	SessionPath      string `env:"TELEGRAM_SESSION_PATH" envDefault:"session.json"`

	// Persistence: a full connection string wins over components
	DatabaseURL  string `env:"DATABASE_URL"`
	DBUser       string `env:"DB_USER" envDefault:"postgres"`
	DBPassword   string `env:"DB_PASSWORD"`
	DBHost       string `env:"DB_HOST" envDefault:"localhost"`
	DBPort       int    `env:"DB_PORT" envDefault:"5432"`
	DBName       string `env:"DB_NAME" envDefault:"orderscout"`
	DBMaxConns   int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	FallbackURL  string `env:"FALLBACK_API_URL"` // PostgREST-style surface, optional
	FallbackKey  string `env:"FALLBACK_API_KEY"`

	// Remote classifier
	LLMAPIKey       string        `env:"LLM_API_KEY"`
	LLMModel        string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMBaseURL      string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMTemperature  float64       `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	LLMMaxTokens    int           `env:"LLM_MAX_TOKENS" envDefault:"500"`
	LLMRetries      int           `env:"LLM_RETRIES" envDefault:"3"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	LLMBatchSize    int           `env:"LLM_BATCH_SIZE" envDefault:"10"`
	LLMRatePerSec   float64       `env:"LLM_RATE_PER_SEC" envDefault:"2"`
	CacheEnabled    bool          `env:"LLM_CACHE_ENABLED" envDefault:"true"`
	CacheTTL        time.Duration `env:"LLM_CACHE_TTL" envDefault:"1h"`
	DailyBudgetUSD  float64       `env:"LLM_DAILY_BUDGET_USD" envDefault:"5.0"`
	RelevanceFloor  float64       `env:"LLM_RELEVANCE_THRESHOLD" envDefault:"0.5"`
	CostInputPer1K  float64       `env:"LLM_COST_INPUT_PER_1K" envDefault:"0.00015"`
	CostOutputPer1K float64       `env:"LLM_COST_OUTPUT_PER_1K" envDefault:"0.0006"`

	// Pipeline
	Workers       int           `env:"PIPELINE_WORKERS" envDefault:"8"`
	QueueSize     int           `env:"PIPELINE_QUEUE_SIZE" envDefault:"800"`
	RemoteSlots   int           `env:"PIPELINE_REMOTE_SLOTS" envDefault:"4"`
	CommitTimeout time.Duration `env:"PIPELINE_COMMIT_TIMEOUT" envDefault:"15s"`
	ShutdownGrace time.Duration `env:"PIPELINE_SHUTDOWN_GRACE" envDefault:"30s"`

	// Chat registry
	RegistryPath string `env:"CHAT_REGISTRY_PATH" envDefault:"chats.json"`

	// Replay feed (optional)
	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"orderscout.messages"`

	// Monitoring
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9090"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL" envDefault:"15s"`
	ErrorThreshold  int           `env:"ERROR_THRESHOLD" envDefault:"10"`
	ErrorWindow     time.Duration `env:"ERROR_WINDOW" envDefault:"5m"`
	SlackWebhookURL string        `env:"SLACK_WEBHOOK_URL"`
	SlackChannel    string        `env:"SLACK_CHANNEL" envDefault:"#order-scout"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from .env file and environment variables
// Priority: ENV vars > .env file > defaults
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; production uses the
	// environment directly.
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be in [0,2], got %v", c.LLMTemperature)
	}
	if c.RelevanceFloor < 0 || c.RelevanceFloor > 1 {
		return fmt.Errorf("LLM_RELEVANCE_THRESHOLD must be in [0,1], got %v", c.RelevanceFloor)
	}
	if c.DailyBudgetUSD < 0 {
		return fmt.Errorf("LLM_DAILY_BUDGET_USD must be non-negative, got %v", c.DailyBudgetUSD)
	}
	if c.LLMBatchSize < 1 {
		return fmt.Errorf("LLM_BATCH_SIZE must be at least 1, got %d", c.LLMBatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.DatabaseURL != "" {
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("DATABASE_URL is malformed: %w", err)
		}
	}
	return nil
}

// DSN assembles the PostgreSQL connection string. A full DATABASE_URL
// wins over the individual components.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", "prefer")
	u.RawQuery = q.Encode()
	return u.String()
}

// LogConfig logs the effective configuration with secrets redacted.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("llm_model", c.LLMModel).
		Str("llm_base_url", c.LLMBaseURL).
		Float64("daily_budget_usd", c.DailyBudgetUSD).
		Float64("relevance_threshold", c.RelevanceFloor).
		Bool("cache_enabled", c.CacheEnabled).
		Dur("cache_ttl", c.CacheTTL).
		Int("workers", c.Workers).
		Int("remote_slots", c.RemoteSlots).
		Str("db_host", c.DBHost).
		Bool("fallback_configured", c.FallbackURL != "").
		Bool("replay_feed", c.NATSURL != "").
		Msg("Configuration loaded")
}
