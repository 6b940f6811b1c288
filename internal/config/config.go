package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Bus        BusConfig        `yaml:"bus" mapstructure:"bus"`
	Listener   ListenerConfig   `yaml:"listener" mapstructure:"listener"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Segment    SegmentConfig    `yaml:"segment" mapstructure:"segment"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// BusConfig configures the message broker connection, stream, and
// subscription identity.
type BusConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	Stream       string `yaml:"stream" mapstructure:"stream"`
	Subject      string `yaml:"subject" mapstructure:"subject"`
	Subscription string `yaml:"subscription" mapstructure:"subscription"`
	AckWaitSecs  int    `yaml:"ack_wait_secs" mapstructure:"ack_wait_secs"`
	MaxDeliver   int    `yaml:"max_deliver" mapstructure:"max_deliver"`
}

// AckWait returns the acknowledgment deadline as a duration.
func (c BusConfig) AckWait() time.Duration {
	return time.Duration(c.AckWaitSecs) * time.Second
}

// ListenerConfig configures per-message processing behavior.
type ListenerConfig struct {
	MaxConcurrency       int  `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	LockRenewCeilingSecs int  `yaml:"lock_renew_ceiling_secs" mapstructure:"lock_renew_ceiling_secs"`
	ParallelStages       bool `yaml:"parallel_stages" mapstructure:"parallel_stages"`
}

// ArchiveConfig configures the warehouse writer.
type ArchiveConfig struct {
	Driver            string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL       string `yaml:"database_url" mapstructure:"database_url"`
	Table             string `yaml:"table" mapstructure:"table"`
	BatchSize         int    `yaml:"batch_size" mapstructure:"batch_size"`
	FlushIntervalSecs int    `yaml:"flush_interval_secs" mapstructure:"flush_interval_secs"`
}

// FlushInterval returns the flush interval as a duration.
func (c ArchiveConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSecs) * time.Second
}

// SegmentConfig configures the analytics tracking forwarder.
type SegmentConfig struct {
	WriteKey    string  `yaml:"write_key" mapstructure:"write_key"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AnthropicConfig holds Anthropic API settings for the enrichment agents.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the CRM client.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// RetryConfig holds the upstream call retry constants.
type RetryConfig struct {
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateLimitBaseMs     int     `yaml:"rate_limit_base_ms" mapstructure:"rate_limit_base_ms"`
	RateLimitMultiplier float64 `yaml:"rate_limit_multiplier" mapstructure:"rate_limit_multiplier"`
	JitterFraction      float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	MaxBackoffMs        int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP utility surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("bus.url", "nats://localhost:4222")
	v.SetDefault("bus.stream", "LEADS")
	v.SetDefault("bus.subject", "lead.>")
	v.SetDefault("bus.subscription", "lead-enrichment")
	v.SetDefault("bus.ack_wait_secs", 30)
	v.SetDefault("bus.max_deliver", 5)
	v.SetDefault("listener.max_concurrency", 10)
	v.SetDefault("listener.lock_renew_ceiling_secs", 300)
	v.SetDefault("listener.parallel_stages", false)
	v.SetDefault("archive.driver", "postgres")
	v.SetDefault("archive.table", "lead_events")
	v.SetDefault("archive.batch_size", 50)
	v.SetDefault("archive.flush_interval_secs", 10)
	v.SetDefault("archive.database_url", "")
	v.SetDefault("segment.write_key", "")
	v.SetDefault("segment.endpoint", "https://events.eu1.segmentapis.com/v1/track")
	v.SetDefault("segment.timeout_secs", 10)
	v.SetDefault("segment.rate_per_sec", 20)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.rate_limit_base_ms", 3000)
	v.SetDefault("retry.rate_limit_multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
