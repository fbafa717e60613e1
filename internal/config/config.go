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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Graph    GraphConfig    `yaml:"graph" mapstructure:"graph"`
	Edgar    EdgarConfig    `yaml:"edgar" mapstructure:"edgar"`
	Reddit   RedditConfig   `yaml:"reddit" mapstructure:"reddit"`
	TikTok   TikTokConfig   `yaml:"tiktok" mapstructure:"tiktok"`
	Entity   EntityConfig   `yaml:"entity" mapstructure:"entity"`
	Evidence EvidenceConfig `yaml:"evidence" mapstructure:"evidence"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`

	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`

	Demo bool `yaml:"demo" mapstructure:"demo"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min" mapstructure:"rate_limit_per_min"`
}

// FetchConfig configures source fetching and response caching. TTLs are in
// seconds; social data is shorter-lived than regulatory data.
type FetchConfig struct {
	SourceTimeoutSecs int `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	SECTTLSecs        int `yaml:"sec_ttl_secs" mapstructure:"sec_ttl_secs"`
	RedditTTLSecs     int `yaml:"reddit_ttl_secs" mapstructure:"reddit_ttl_secs"`
	TikTokTTLSecs     int `yaml:"tiktok_ttl_secs" mapstructure:"tiktok_ttl_secs"`
	QueryTTLSecs      int `yaml:"query_ttl_secs" mapstructure:"query_ttl_secs"`
}

// GraphConfig holds the external graph service settings. An empty base URL
// disables graph lookups; queries then run without graph context.
type GraphConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// EdgarConfig holds SEC EDGAR full-text search settings.
type EdgarConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RedditConfig holds Reddit public API settings.
type RedditConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// TikTokConfig holds the TikTok scrape-actor API settings.
type TikTokConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Actor   string `yaml:"actor" mapstructure:"actor"`
}

// EntityConfig configures entity extraction.
type EntityConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// EvidenceConfig configures evidence snippet scoring.
type EvidenceConfig struct {
	KeywordsFile string `yaml:"keywords_file" mapstructure:"keywords_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures the background alert checker. An empty webhook
// URL disables alert delivery; evaluation still runs for `queries stats`.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	SlowQueryThresholdMS int64   `yaml:"slow_query_threshold_ms" mapstructure:"slow_query_threshold_ms"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SECUREASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_min", 20)
	v.SetDefault("fetch.source_timeout_secs", 15)
	v.SetDefault("fetch.sec_ttl_secs", 3600)
	v.SetDefault("fetch.reddit_ttl_secs", 900)
	v.SetDefault("fetch.tiktok_ttl_secs", 900)
	v.SetDefault("fetch.query_ttl_secs", 1800)
	v.SetDefault("edgar.base_url", "https://efts.sec.gov/LATEST")
	v.SetDefault("edgar.user_agent", "SecureAsk research@secureask.dev")
	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.user_agent", "SecureAsk/1.0")
	v.SetDefault("tiktok.base_url", "https://api.apify.com")
	v.SetDefault("tiktok.actor", "clockworks~free-tiktok-scraper")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.slow_query_threshold_ms", 10000)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("demo", false)

	// Credential and optional-endpoint keys default empty; registering them is
	// what lets AutomaticEnv bind env-only values during Unmarshal.
	v.SetDefault("store.database_url", "")
	v.SetDefault("graph.base_url", "")
	v.SetDefault("graph.key", "")
	v.SetDefault("tiktok.token", "")
	v.SetDefault("entity.rules_file", "")
	v.SetDefault("evidence.keywords_file", "")
	v.SetDefault("monitoring.webhook_url", "")

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

// Validate checks that the configuration is usable for the given mode
// ("ask", "serve"). Collects all problems rather than stopping at the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Fetch.SourceTimeoutSecs < 1 || c.Fetch.SourceTimeoutSecs > 300 {
		problems = append(problems, "fetch.source_timeout_secs must be between 1 and 300")
	}
	for _, ttl := range []int{c.Fetch.SECTTLSecs, c.Fetch.RedditTTLSecs, c.Fetch.TikTokTTLSecs, c.Fetch.QueryTTLSecs} {
		if ttl < 0 {
			problems = append(problems, "fetch cache TTLs must be >= 0")
			break
		}
	}

	switch mode {
	case "ask":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.RateLimitPerMin < 0 {
			problems = append(problems, "server.rate_limit_per_min must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
