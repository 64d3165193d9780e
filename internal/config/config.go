// Package config defines the polyseries configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration. Fields come from a TOML file, then
// POLYSERIES_* environment variables, then command-line flags.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Fetch      FetchConfig      `toml:"fetch"`
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Series     SeriesConfig     `toml:"series"`
	Trades     TradesConfig     `toml:"trades"`
	Run        RunConfig        `toml:"run"`
	Cache      CacheConfig      `toml:"cache"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Classifier ClassifierConfig `toml:"classifier"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the API hosts.
type PolymarketConfig struct {
	GammaHost string   `toml:"gamma_host"`
	ClobHost  string   `toml:"clob_host"`
	DataHost  string   `toml:"data_host"`
	Timeout   duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

// FetchConfig bounds request rate and retries. All three APIs share one budget.
type FetchConfig struct {
	RPS         float64  `toml:"rps"`
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   duration `toml:"base_delay"`
	MaxDelay    duration `toml:"max_delay"`
}

// DiscoveryConfig holds the closed-market listing parameters.
type DiscoveryConfig struct {
	MaxMarkets       int    `toml:"max_markets"`
	Months           int    `toml:"months"`
	Limit            int    `toml:"limit"` // listing page size
	Order            string `toml:"order"`
	Ascending        bool   `toml:"ascending"`
	UseAPIDateFilter bool   `toml:"use_api_date_filter"`
}

// SeriesConfig holds the price-history walk parameters.
type SeriesConfig struct {
	WindowDays int `toml:"window_days"`
	Fidelity   int `toml:"fidelity"` // minutes
	MaxWindows int `toml:"max_windows"`
}

// TradesConfig holds the Data API paging parameters.
type TradesConfig struct {
	PageSize  int `toml:"page_size"`
	OffsetCap int `toml:"offset_cap"`
}

// RunConfig holds per-invocation settings.
type RunConfig struct {
	Out      string `toml:"out"`
	Workers  int    `toml:"workers"`
	Schedule string `toml:"schedule"` // cron expression; empty runs once
}

// CacheConfig selects the aggregate cache backend.
type CacheConfig struct {
	Backend    string   `toml:"backend"` // none, sqlite or redis
	SQLitePath string   `toml:"sqlite_path"`
	TTL        duration `toml:"ttl"` // redis only; 0 keeps entries
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	Archive        bool   `toml:"archive"` // keep a copy per run
	Restore        bool   `toml:"restore"` // fetch missing inputs before a run
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ClassifierConfig configures the chat model used by the classify job.
type ClassifierConfig struct {
	APIBase      string   `toml:"api_base"`
	APIKey       string   `toml:"api_key"`
	Model        string   `toml:"model"`
	Timeout      duration `toml:"timeout"`
	MaxAttempts  int      `toml:"max_attempts"`
	Delay        duration `toml:"delay"`
	FailureDelay duration `toml:"failure_delay"`
	Reclassify   bool     `toml:"reclassify"`
}

// NotifyConfig holds the run notification channels. A channel is enabled
// when its credentials are set.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"` // empty sends every event
}

// duration wraps time.Duration so TOML strings like "500ms" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration. It matches config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
			DataHost:  "https://data-api.polymarket.com",
			Timeout:   duration{30 * time.Second},
			UserAgent: "polyseries/1.0",
		},
		Fetch: FetchConfig{
			RPS:         5,
			MaxAttempts: 6,
			BaseDelay:   duration{time.Second},
			MaxDelay:    duration{16 * time.Second},
		},
		Discovery: DiscoveryConfig{
			MaxMarkets: 20,
			Months:     6,
			Limit:      100,
			Order:      "endDate",
			Ascending:  false,
		},
		Series: SeriesConfig{
			WindowDays: 30,
			Fidelity:   1440,
		},
		Trades: TradesConfig{
			PageSize:  500,
			OffsetCap: 3500,
		},
		Run: RunConfig{
			Out:     "polymarket_output",
			Workers: 1,
		},
		Cache: CacheConfig{
			Backend:    "sqlite",
			SQLitePath: "cache/polyseries.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "polyseries:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyseries-data",
			ForcePathStyle: true,
			Prefix:         "polyseries",
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Classifier: ClassifierConfig{
			APIBase:      "https://api.groq.com/openai/v1",
			Model:        "llama-3.3-70b-versatile",
			Timeout:      duration{60 * time.Second},
			MaxAttempts:  1,
			Delay:        duration{500 * time.Millisecond},
			FailureDelay: duration{2 * time.Second},
		},
		Mode:     "daily",
		LogLevel: "info",
	}
}

// Modes accepted by Config.Mode.
const (
	ModeDaily    = "daily"
	ModeVolumes  = "volumes"
	ModeClassify = "classify"
	ModeAll      = "all"
)

var validModes = map[string]bool{
	ModeDaily:    true,
	ModeVolumes:  true,
	ModeClassify: true,
	ModeAll:      true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCacheBackends = map[string]bool{
	"none":   true,
	"sqlite": true,
	"redis":  true,
}

// NeedsClassifier reports whether the configured mode runs the classify job.
func (c *Config) NeedsClassifier() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeClassify || m == ModeAll
}

// Validate checks Config for invalid or missing values and returns one error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: daily, volumes, classify, all)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}

	if c.Fetch.RPS <= 0 {
		errs = append(errs, fmt.Sprintf("fetch: rps must be > 0, got %v", c.Fetch.RPS))
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, "fetch: max_attempts must be >= 1")
	}

	if c.Discovery.MaxMarkets < 0 {
		errs = append(errs, "discovery: max_markets must be >= 0")
	}
	if c.Discovery.Months < 1 {
		errs = append(errs, "discovery: months must be >= 1")
	}
	if c.Discovery.Limit < 1 {
		errs = append(errs, "discovery: limit must be >= 1")
	}

	if c.Series.WindowDays < 1 {
		errs = append(errs, "series: window_days must be >= 1")
	}
	if c.Series.Fidelity < 1 {
		errs = append(errs, "series: fidelity must be >= 1")
	}

	if c.Trades.PageSize < 1 {
		errs = append(errs, "trades: page_size must be >= 1")
	}
	if c.Trades.OffsetCap < 0 {
		errs = append(errs, "trades: offset_cap must be >= 0")
	}

	if c.Run.Out == "" {
		errs = append(errs, "run: out must not be empty")
	}
	if c.Run.Workers < 1 {
		errs = append(errs, "run: workers must be >= 1")
	}
	if c.Run.Schedule != "" {
		if _, err := cron.ParseStandard(c.Run.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("run: invalid schedule %q: %v", c.Run.Schedule, err))
		}
	}

	backend := strings.ToLower(c.Cache.Backend)
	if !validCacheBackends[backend] {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: none, sqlite, redis)", c.Cache.Backend))
	}
	if backend == "sqlite" && c.Cache.SQLitePath == "" {
		errs = append(errs, "cache: sqlite_path is required for the sqlite backend")
	}
	if backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr is required for the redis cache backend")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Supabase.Enabled && c.Supabase.DSN == "" && c.Supabase.Host == "" {
		errs = append(errs, "supabase: dsn or host is required when enabled")
	}

	if c.NeedsClassifier() {
		if c.Classifier.APIKey == "" {
			errs = append(errs, "classifier: api_key is required for mode "+c.Mode)
		}
		if c.Classifier.Model == "" {
			errs = append(errs, "classifier: model must not be empty")
		}
		if c.Classifier.MaxAttempts < 1 {
			errs = append(errs, "classifier: max_attempts must be >= 1")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
