// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	State     StateConfig     `yaml:"state" mapstructure:"state"`
	SAM       SAMConfig       `yaml:"sam" mapstructure:"sam"`
	SubNet    SubNetConfig    `yaml:"subnet" mapstructure:"subnet"`
	Portals   PortalsConfig   `yaml:"portals" mapstructure:"portals"`
	Matcher   MatcherConfig   `yaml:"matcher" mapstructure:"matcher"`
	Scout     ScoutConfig     `yaml:"scout" mapstructure:"scout"`
	Backfill  BackfillConfig  `yaml:"backfill" mapstructure:"backfill"`
	Semantic  SemanticConfig  `yaml:"semantic" mapstructure:"semantic"`
	Digest    DigestConfig    `yaml:"digest" mapstructure:"digest"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the opportunity database backend. An empty
// DatabaseURL selects the in-memory store; the pipeline keeps working
// without Postgres.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// StateConfig configures the durable coordinator state store.
type StateConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SAMConfig holds SAM.gov Opportunities API settings.
type SAMConfig struct {
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// SubNetConfig holds SBA SubNet scraper settings.
type SubNetConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	ListURL   string `yaml:"list_url" mapstructure:"list_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// PortalsConfig points at the YAML registry of state procurement portals.
type PortalsConfig struct {
	RegistryPath string `yaml:"registry_path" mapstructure:"registry_path"`
}

// MatcherConfig holds scoring thresholds.
type MatcherConfig struct {
	HighThreshold   float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`
}

// ScoutConfig configures the incremental scan agent.
type ScoutConfig struct {
	ScoreThreshold float64 `yaml:"score_threshold" mapstructure:"score_threshold"`
	IntervalHours  int     `yaml:"interval_hours" mapstructure:"interval_hours"`
	FetchLimit     int     `yaml:"fetch_limit" mapstructure:"fetch_limit"`
}

// BackfillConfig configures the historical crawl agent.
type BackfillConfig struct {
	PageSize           int     `yaml:"page_size" mapstructure:"page_size"`
	RateLimitPauseSecs float64 `yaml:"rate_limit_pause_secs" mapstructure:"rate_limit_pause_secs"`
	MaxPageRetries     int     `yaml:"max_page_retries" mapstructure:"max_page_retries"`
	MonthPauseSecs     float64 `yaml:"month_pause_secs" mapstructure:"month_pause_secs"`
	PagePauseSecs      float64 `yaml:"page_pause_secs" mapstructure:"page_pause_secs"`
}

// SemanticConfig holds Anthropic API settings for semantic scoring.
type SemanticConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxPerRun int    `yaml:"max_per_run" mapstructure:"max_per_run"`
}

// DigestConfig configures the new-opportunity webhook digest.
type DigestConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("GOVSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("state.path", "data/govscout_state.db")
	v.SetDefault("sam.base_url", "https://api.sam.gov/prod/opportunities/v2/search")
	v.SetDefault("sam.timeout_secs", 30)
	v.SetDefault("sam.requests_per_second", 10)
	v.SetDefault("subnet.enabled", true)
	v.SetDefault("subnet.list_url", "https://www.sba.gov/federal-contracting/contracting-guide/prime-subcontracting/subcontracting-opportunities")
	v.SetDefault("subnet.user_agent", "Mozilla/5.0 (compatible; govscout/1.0)")
	v.SetDefault("portals.registry_path", "")
	v.SetDefault("matcher.high_threshold", 70.0)
	v.SetDefault("matcher.medium_threshold", 50.0)
	v.SetDefault("scout.score_threshold", 40.0)
	v.SetDefault("scout.interval_hours", 6)
	v.SetDefault("scout.fetch_limit", 100)
	v.SetDefault("backfill.page_size", 100)
	v.SetDefault("backfill.rate_limit_pause_secs", 10)
	v.SetDefault("backfill.max_page_retries", 3)
	v.SetDefault("backfill.month_pause_secs", 1)
	v.SetDefault("backfill.page_pause_secs", 0.2)
	v.SetDefault("semantic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("semantic.max_per_run", 10)

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

// Validate checks settings required by the named command group.
func (c *Config) Validate(scope string) error {
	switch scope {
	case "sam":
		if c.SAM.APIKey == "" {
			return eris.New("config: sam.api_key is required (GOVSCOUT_SAM_API_KEY)")
		}
	case "matcher":
		if c.Matcher.MediumThreshold > c.Matcher.HighThreshold {
			return eris.Errorf("config: matcher.medium_threshold %.0f exceeds high_threshold %.0f",
				c.Matcher.MediumThreshold, c.Matcher.HighThreshold)
		}
	}
	return nil
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
