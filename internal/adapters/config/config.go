package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	App          AppConfig          `envconfig:"APP"`
	Logging      LoggingConfig      `envconfig:"LOGGING"`
	Server       ServerConfig       `envconfig:"SERVER"`
	Health       HealthConfig       `envconfig:"HEALTH"`
	Exchanges    ExchangesConfig    `envconfig:"EXCHANGES"`
	Redis        RedisConfig        `envconfig:"REDIS"`
	Database     DatabaseConfig     `envconfig:"DATABASE"`
	ClickHouse   ClickHouseConfig   `envconfig:"CLICKHOUSE"`
	AI           AIConfig           `envconfig:"AI"`
	Telegram     TelegramConfig     `envconfig:"TELEGRAM"`
	Orchestrator OrchestratorConfig `envconfig:"ORCHESTRATOR"`
}

// AppConfig identifies the process
type AppConfig struct {
	Name string `envconfig:"APP_NAME" default:"botfleet"`
	Env  string `envconfig:"APP_ENV" default:"development"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:""`
}

// ServerConfig represents the admin REST listener
type ServerConfig struct {
	Host         string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int    `envconfig:"SERVER_PORT" default:"8080"`
	AuthToken    string `envconfig:"SERVER_AUTH_TOKEN" required:"false"`
	WebhookToken string `envconfig:"WEBHOOK_TOKEN" required:"false"`
}

// HealthConfig represents the health endpoint listener
type HealthConfig struct {
	Port int `envconfig:"HEALTH_PORT" default:"8081"`
}

// ExchangesConfig represents exchange configurations
type ExchangesConfig struct {
	Binance ExchangeConfig `envconfig:"BINANCE"`
	Bybit   ExchangeConfig `envconfig:"BYBIT"`
	Default string         `envconfig:"EXCHANGE_DEFAULT" default:"binance"`
}

// ExchangeConfig represents single exchange credentials
type ExchangeConfig struct {
	APIKey  string `envconfig:"API_KEY" required:"false"`
	Secret  string `envconfig:"SECRET" required:"false"`
	Testnet bool   `envconfig:"TESTNET" default:"true"`
}

// RedisConfig represents the state store backend
type RedisConfig struct {
	Addr            string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password        string        `envconfig:"REDIS_PASSWORD" required:"false"`
	DB              int           `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix       string        `envconfig:"REDIS_KEY_PREFIX" default:"botfleet"`
	DialTimeout     time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"2s"`
	OpTimeout       time.Duration `envconfig:"REDIS_OP_TIMEOUT" default:"2s"`
	FallbackToDummy bool          `envconfig:"REDIS_FALLBACK_TO_DUMMY" default:"true"`
}

// DatabaseConfig represents ledger database connection parameters
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"botfleet"`
	User     string `envconfig:"DB_USER" default:"botfleet"`
	Password string `envconfig:"DB_PASSWORD" required:"false"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// ClickHouseConfig represents the tick metrics sink
type ClickHouseConfig struct {
	Enabled       bool          `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Addr          string        `envconfig:"CLICKHOUSE_ADDR" default:"localhost:9000"`
	Database      string        `envconfig:"CLICKHOUSE_DATABASE" default:"botfleet"`
	Username      string        `envconfig:"CLICKHOUSE_USERNAME" default:"default"`
	Password      string        `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"10s"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"1000"`
}

// AIConfig represents AI provider configurations
type AIConfig struct {
	OpenAI      AIProviderConfig `envconfig:"OPENAI"`
	DeepSeek    AIProviderConfig `envconfig:"DEEPSEEK"`
	Claude      AIProviderConfig `envconfig:"CLAUDE"`
	Temperature float32          `envconfig:"AI_TEMPERATURE" default:"0.2"`
	MaxTokens   int              `envconfig:"AI_MAX_TOKENS" default:"300"`
	Timeout     time.Duration    `envconfig:"AI_TIMEOUT" default:"30s"`
}

// AIProviderConfig represents single AI provider configuration
type AIProviderConfig struct {
	APIKey  string `envconfig:"API_KEY" required:"false"`
	Model   string `envconfig:"MODEL" required:"false"`
	BaseURL string `envconfig:"BASE_URL" required:"false"`
	Enabled bool   `envconfig:"ENABLED" default:"false"`
}

// IsConfigured reports whether the provider can actually be used.
func (c *AIProviderConfig) IsConfigured() bool {
	return c.Enabled && c.APIKey != ""
}

// TelegramConfig represents Telegram control channel configuration.
// An empty token disables the surface entirely.
type TelegramConfig struct {
	BotToken      string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID        int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	AlertOnTrades bool   `envconfig:"TELEGRAM_ALERT_ON_TRADES" default:"true"`
	AlertOnErrors bool   `envconfig:"TELEGRAM_ALERT_ON_ERRORS" default:"true"`
}

// Enabled reports whether the Telegram surface should start.
func (c *TelegramConfig) Enabled() bool {
	return c.BotToken != ""
}

// OrchestratorConfig represents the decision-loop parameters shared by
// every bot instance.
type OrchestratorConfig struct {
	LoopInterval       time.Duration `envconfig:"LOOP_INTERVAL" default:"5m"`
	SignalMode         string        `envconfig:"SIGNAL_MODE" default:"memory"`
	KlineInterval      string        `envconfig:"KLINE_INTERVAL" default:"5m"`
	KlineLimit         int           `envconfig:"KLINE_LIMIT" default:"100"`
	AIWeight           float64       `envconfig:"AI_WEIGHT" default:"0.4"`
	RuleWeight         float64       `envconfig:"RULE_WEIGHT" default:"0.3"`
	ScoreWeight        float64       `envconfig:"SCORE_WEIGHT" default:"0.3"`
	WeightedThreshold  float64       `envconfig:"WEIGHTED_THRESHOLD" default:"0.3"`
	ConsensusThreshold float64       `envconfig:"CONSENSUS_THRESHOLD" default:"0.6667"`
	UseRealBalance     bool          `envconfig:"USE_REAL_BALANCE" default:"false"`
	NotionalCapital    float64       `envconfig:"NOTIONAL_CAPITAL" default:"1000"`
	MemoryLookbackDays int           `envconfig:"MEMORY_LOOKBACK_DAYS" default:"7"`
	ExchangeTimeout    time.Duration `envconfig:"EXCHANGE_TIMEOUT" default:"10s"`
	RunLockTTL         time.Duration `envconfig:"RUN_LOCK_TTL" default:"10m"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.Exchanges.Default {
	case "binance", "bybit", "paper":
	default:
		return fmt.Errorf("unknown default exchange %q", c.Exchanges.Default)
	}

	switch c.Orchestrator.SignalMode {
	case "memory", "rule":
	default:
		return fmt.Errorf("signal mode must be memory or rule, got %q", c.Orchestrator.SignalMode)
	}

	if c.Orchestrator.LoopInterval <= 0 {
		return fmt.Errorf("loop interval must be positive")
	}
	if c.Orchestrator.KlineLimit < 30 {
		return fmt.Errorf("kline limit must be at least 30 for indicator windows")
	}

	weightSum := c.Orchestrator.AIWeight + c.Orchestrator.RuleWeight + c.Orchestrator.ScoreWeight
	if c.Orchestrator.AIWeight < 0 || c.Orchestrator.RuleWeight < 0 || c.Orchestrator.ScoreWeight < 0 {
		return fmt.Errorf("ensemble weights must be non-negative")
	}
	if weightSum <= 0 {
		return fmt.Errorf("ensemble weights must not all be zero")
	}

	if t := c.Orchestrator.WeightedThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("weighted threshold must be within (0,1], got %v", t)
	}
	if t := c.Orchestrator.ConsensusThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("consensus threshold must be within (0,1], got %v", t)
	}
	if c.Orchestrator.NotionalCapital <= 0 {
		return fmt.Errorf("notional capital must be positive")
	}
	if c.Orchestrator.MemoryLookbackDays < 1 {
		return fmt.Errorf("memory lookback must be at least 1 day")
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram chat_id is required when bot token is set")
	}

	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string for the native protocol
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s/%s?dial_timeout=5s",
		c.Username, c.Password, c.Addr, c.Database,
	)
}
