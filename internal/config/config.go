// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/museumatlas/curator/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Budget       BudgetConfig       `yaml:"budget" mapstructure:"budget"`
	Thresholds   ThresholdConfig    `yaml:"thresholds" mapstructure:"thresholds"`
	Fields       FieldConfig        `yaml:"fields" mapstructure:"fields"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Judge        JudgeConfig        `yaml:"judge" mapstructure:"judge"`
	Encyclopedia EncyclopediaConfig `yaml:"encyclopedia" mapstructure:"encyclopedia"`
	Backbone     BackboneConfig     `yaml:"backbone" mapstructure:"backbone"`
	GoldSet      GoldSetConfig      `yaml:"gold_set" mapstructure:"gold_set"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Breaker      BreakerConfig      `yaml:"breaker" mapstructure:"breaker"`
	Pricing      cost.Rates         `yaml:"pricing" mapstructure:"pricing"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BudgetConfig caps paid spend for a run.
type BudgetConfig struct {
	TotalUSD     float64 `yaml:"total_usd" mapstructure:"total_usd"`
	ReserveRatio float64 `yaml:"reserve_ratio" mapstructure:"reserve_ratio"`
}

// ThresholdConfig holds the governance thresholds.
type ThresholdConfig struct {
	// Confidence is the minimum confidence a volatile-field candidate needs
	// to merge directly instead of going to review.
	Confidence int `yaml:"confidence" mapstructure:"confidence"`
	// FailureRate aborts the run when exceeded (fraction, e.g. 0.10).
	FailureRate float64 `yaml:"failure_rate" mapstructure:"failure_rate"`
	// DriftRate flags the run when the gold-set comparison exceeds it.
	DriftRate float64 `yaml:"drift_rate" mapstructure:"drift_rate"`
}

// FieldConfig names the field sets the applier gates on.
type FieldConfig struct {
	Volatile []string `yaml:"volatile" mapstructure:"volatile"`
	ArtOnly  []string `yaml:"art_only" mapstructure:"art_only"`
}

// PipelineConfig configures orchestrator behavior.
type PipelineConfig struct {
	// TopN caps how many museums per partition reach the judge stage.
	TopN int `yaml:"top_n" mapstructure:"top_n"`
	// PrereqCoverage is the minimum fraction of records the previous stage
	// must have produced output for.
	PrereqCoverage float64 `yaml:"prereq_coverage" mapstructure:"prereq_coverage"`
	CacheTTLHours  int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	DryRun         bool    `yaml:"dry_run" mapstructure:"dry_run"`
}

// JudgeConfig configures the LLM judge.
type JudgeConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	Model      string  `yaml:"model" mapstructure:"model"`
	MaxTokens  int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst  int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// EncyclopediaConfig configures the encyclopedia lookup source.
type EncyclopediaConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// BackboneConfig locates the curated reference dataset.
type BackboneConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// GoldSetConfig locates the drift gold set.
type GoldSetConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RetryConfig tunes the shared retry policy for lookup calls.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs    int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Growth         float64 `yaml:"growth" mapstructure:"growth"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerConfig tunes the per-source circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// ServerConfig configures the read-only API server.
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
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "curator.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("budget.total_usd", 25.0)
	v.SetDefault("budget.reserve_ratio", 0.10)
	v.SetDefault("thresholds.confidence", 3)
	v.SetDefault("thresholds.failure_rate", 0.10)
	v.SetDefault("thresholds.drift_rate", 0.02)
	v.SetDefault("fields.volatile", []string{
		"collection_strength", "exhibition_strength", "historical_context",
		"reputation_penalty", "collection_tier", "visit_duration",
	})
	v.SetDefault("fields.art_only", []string{"art_movement", "featured_artists"})
	v.SetDefault("pipeline.top_n", 50)
	v.SetDefault("pipeline.prereq_coverage", 0.5)
	v.SetDefault("pipeline.cache_ttl_hours", 168)
	v.SetDefault("judge.model", "claude-haiku-4-5-20251001")
	v.SetDefault("judge.max_tokens", 512)
	v.SetDefault("judge.rate_per_sec", 2.0)
	v.SetDefault("judge.rate_burst", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 500)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.growth", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_secs", 30)
	v.SetDefault("pricing.anthropic", map[string]cost.ModelRate{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	})
	v.SetDefault("pricing.encyclopedia.per_query", 0.001)
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
