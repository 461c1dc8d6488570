// Package config defines all configuration for the prediction bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via POLY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Models    ModelsConfig    `mapstructure:"models"`
	Signals   SignalsConfig   `mapstructure:"signals"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// APIConfig holds upstream service endpoints and credentials.
// NewsAPIKey is sensitive and normally comes from POLY_NEWS_API_KEY.
type APIConfig struct {
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	NewsBaseURL  string `mapstructure:"news_base_url"`
	NewsAPIKey   string `mapstructure:"news_api_key"`
	WSMarketURL  string `mapstructure:"ws_market_url"`
}

// DatabaseConfig sets where the sqlite database lives.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ModelsConfig controls model artifact loading and ensemble weighting.
//
//   - Dir: directory of *.json model artifacts, loaded once at startup.
//   - Weights: per-model ensemble weight by artifact name; unlisted models
//     default to 1.0.
//   - ConfidenceFloor: confidence reported when only one model is loaded
//     (inter-model agreement is undefined for a single model).
type ModelsConfig struct {
	Dir             string             `mapstructure:"dir"`
	Weights         map[string]float64 `mapstructure:"weights"`
	ConfidenceFloor float64            `mapstructure:"confidence_floor"`
}

// SignalsConfig holds the gating thresholds and sizing rules that turn a
// prediction edge into a trading signal.
//
//   - MinEdge: minimum |model_probability - market_price| to signal.
//   - MinConfidence: minimum inter-model agreement to signal.
//   - MinLiquidity: minimum 24h volume; markets with unknown volume are
//     treated as zero and rejected.
//   - BaseUnit: notional size one MEDIUM signal suggests, before capping.
//   - Weak/Medium/StrongMultiplier: scale BaseUnit per strength bucket.
//   - MaxPositionSize: hard cap on any suggested size.
type SignalsConfig struct {
	MinEdge          float64 `mapstructure:"min_edge"`
	MinConfidence    float64 `mapstructure:"min_confidence"`
	MinLiquidity     float64 `mapstructure:"min_liquidity"`
	BaseUnit         float64 `mapstructure:"base_unit"`
	WeakMultiplier   float64 `mapstructure:"weak_multiplier"`
	MediumMultiplier float64 `mapstructure:"medium_multiplier"`
	StrongMultiplier float64 `mapstructure:"strong_multiplier"`
	MaxPositionSize  float64 `mapstructure:"max_position_size"`
}

// TradingConfig controls trade materialization and portfolio accounting.
type TradingConfig struct {
	PaperTrading bool    `mapstructure:"paper_trading"`
	StartingCash float64 `mapstructure:"starting_cash"`
	AutoSignals  bool    `mapstructure:"auto_signals"` // default for scheduled cycles
	AutoTrades   bool    `mapstructure:"auto_trades"`  // default for scheduled cycles
}

// PipelineConfig bounds the cycle runner.
//
//   - DefaultLimit: markets per cycle when the trigger omits ?limit.
//   - Concurrency: simultaneous per-market workers (and open transactions).
//   - PerMarketTimeout: hard deadline for one market's fetch+predict+persist.
//   - MidpointConcurrency: parallel midpoint prefetch calls across a batch.
//   - CallTimeout: budget for each single upstream call in the aggregator.
type PipelineConfig struct {
	DefaultLimit        int           `mapstructure:"default_limit"`
	Concurrency         int           `mapstructure:"concurrency"`
	PerMarketTimeout    time.Duration `mapstructure:"per_market_timeout"`
	MidpointConcurrency int           `mapstructure:"midpoint_concurrency"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
}

// FeedConfig toggles the WebSocket market feed that keeps a live midpoint
// cache. When disabled, midpoints come from REST only.
type FeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SchedulerConfig optionally runs cycles on a cron spec (e.g. "@every 15m").
// Empty disables internal scheduling; the HTTP trigger always works.
type SchedulerConfig struct {
	Cron string `mapstructure:"cron"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: POLY_NEWS_API_KEY, POLY_DATABASE_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("POLY_NEWS_API_KEY"); key != "" {
		cfg.API.NewsAPIKey = key
	}
	if p := os.Getenv("POLY_DATABASE_PATH"); p != "" {
		cfg.Database.Path = p
	}
	if os.Getenv("POLY_PAPER_TRADING") == "false" || os.Getenv("POLY_PAPER_TRADING") == "0" {
		cfg.Trading.PaperTrading = false
	}
	if os.Getenv("POLY_AUTO_TRADES") == "true" || os.Getenv("POLY_AUTO_TRADES") == "1" {
		cfg.Trading.AutoTrades = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("api.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("api.news_base_url", "https://newsapi.org")
	v.SetDefault("api.ws_market_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")

	v.SetDefault("database.path", "data/predictions.db")

	v.SetDefault("models.dir", "models")
	v.SetDefault("models.confidence_floor", 0.5)

	v.SetDefault("signals.min_edge", 0.05)
	v.SetDefault("signals.min_confidence", 0.55)
	v.SetDefault("signals.min_liquidity", 500.0)
	v.SetDefault("signals.base_unit", 50.0)
	v.SetDefault("signals.weak_multiplier", 0.5)
	v.SetDefault("signals.medium_multiplier", 1.0)
	v.SetDefault("signals.strong_multiplier", 2.0)
	v.SetDefault("signals.max_position_size", 200.0)

	v.SetDefault("trading.paper_trading", true)
	v.SetDefault("trading.starting_cash", 10000.0)
	v.SetDefault("trading.auto_signals", true)
	v.SetDefault("trading.auto_trades", false)

	v.SetDefault("pipeline.default_limit", 10)
	v.SetDefault("pipeline.concurrency", 3)
	v.SetDefault("pipeline.per_market_timeout", 30*time.Second)
	v.SetDefault("pipeline.midpoint_concurrency", 20)
	v.SetDefault("pipeline.call_timeout", 5*time.Second)

	v.SetDefault("feed.enabled", false)

	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	if c.API.GammaBaseURL == "" {
		return fmt.Errorf("api.gamma_base_url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required (set POLY_DATABASE_PATH)")
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if c.Models.ConfidenceFloor < 0 || c.Models.ConfidenceFloor > 1 {
		return fmt.Errorf("models.confidence_floor must be in [0,1]")
	}
	if c.Signals.MinEdge <= 0 || c.Signals.MinEdge >= 1 {
		return fmt.Errorf("signals.min_edge must be in (0,1)")
	}
	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 1 {
		return fmt.Errorf("signals.min_confidence must be in [0,1]")
	}
	if c.Signals.MinLiquidity < 0 {
		return fmt.Errorf("signals.min_liquidity must be >= 0")
	}
	if c.Signals.BaseUnit <= 0 {
		return fmt.Errorf("signals.base_unit must be > 0")
	}
	if c.Signals.MaxPositionSize <= 0 {
		return fmt.Errorf("signals.max_position_size must be > 0")
	}
	if c.Trading.StartingCash <= 0 {
		return fmt.Errorf("trading.starting_cash must be > 0")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.PerMarketTimeout <= 0 {
		return fmt.Errorf("pipeline.per_market_timeout must be > 0")
	}
	if c.Pipeline.MidpointConcurrency <= 0 {
		return fmt.Errorf("pipeline.midpoint_concurrency must be > 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}
	return nil
}
