package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, loads .env when present,
// and applies POLYSERIES_* environment overrides. An empty path skips the
// file. The result is not validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose POLYSERIES_* variable is set, so
// secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "POLYSERIES_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "POLYSERIES_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYSERIES_POLYMARKET_DATA_HOST")
	setDuration(&cfg.Polymarket.Timeout, "POLYSERIES_POLYMARKET_TIMEOUT")
	setStr(&cfg.Polymarket.UserAgent, "POLYSERIES_POLYMARKET_USER_AGENT")

	// ── Fetch ──
	setFloat64(&cfg.Fetch.RPS, "POLYSERIES_FETCH_RPS")
	setInt(&cfg.Fetch.MaxAttempts, "POLYSERIES_FETCH_MAX_ATTEMPTS")
	setDuration(&cfg.Fetch.BaseDelay, "POLYSERIES_FETCH_BASE_DELAY")
	setDuration(&cfg.Fetch.MaxDelay, "POLYSERIES_FETCH_MAX_DELAY")

	// ── Discovery ──
	setInt(&cfg.Discovery.MaxMarkets, "POLYSERIES_DISCOVERY_MAX_MARKETS")
	setInt(&cfg.Discovery.Months, "POLYSERIES_DISCOVERY_MONTHS")
	setInt(&cfg.Discovery.Limit, "POLYSERIES_DISCOVERY_LIMIT")
	setStr(&cfg.Discovery.Order, "POLYSERIES_DISCOVERY_ORDER")
	setBool(&cfg.Discovery.Ascending, "POLYSERIES_DISCOVERY_ASCENDING")
	setBool(&cfg.Discovery.UseAPIDateFilter, "POLYSERIES_DISCOVERY_USE_API_DATE_FILTER")

	// ── Series / Trades ──
	setInt(&cfg.Series.WindowDays, "POLYSERIES_SERIES_WINDOW_DAYS")
	setInt(&cfg.Series.Fidelity, "POLYSERIES_SERIES_FIDELITY")
	setInt(&cfg.Series.MaxWindows, "POLYSERIES_SERIES_MAX_WINDOWS")
	setInt(&cfg.Trades.PageSize, "POLYSERIES_TRADES_PAGE_SIZE")
	setInt(&cfg.Trades.OffsetCap, "POLYSERIES_TRADES_OFFSET_CAP")

	// ── Run ──
	setStr(&cfg.Run.Out, "POLYSERIES_RUN_OUT")
	setInt(&cfg.Run.Workers, "POLYSERIES_RUN_WORKERS")
	setStr(&cfg.Run.Schedule, "POLYSERIES_RUN_SCHEDULE")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "POLYSERIES_CACHE_BACKEND")
	setStr(&cfg.Cache.SQLitePath, "POLYSERIES_CACHE_SQLITE_PATH")
	setDuration(&cfg.Cache.TTL, "POLYSERIES_CACHE_TTL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYSERIES_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYSERIES_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYSERIES_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYSERIES_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYSERIES_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYSERIES_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "POLYSERIES_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYSERIES_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYSERIES_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYSERIES_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYSERIES_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYSERIES_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYSERIES_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYSERIES_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYSERIES_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "POLYSERIES_S3_PREFIX")
	setBool(&cfg.S3.Archive, "POLYSERIES_S3_ARCHIVE")
	setBool(&cfg.S3.Restore, "POLYSERIES_S3_RESTORE")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "POLYSERIES_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "POLYSERIES_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "POLYSERIES_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "POLYSERIES_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLYSERIES_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLYSERIES_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLYSERIES_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLYSERIES_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLYSERIES_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "POLYSERIES_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "POLYSERIES_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "POLYSERIES_SUPABASE_RUN_MIGRATIONS")

	// ── Classifier ──
	setStr(&cfg.Classifier.APIBase, "GROQ_API_BASE") // compatibility alias
	setStr(&cfg.Classifier.APIBase, "POLYSERIES_CLASSIFIER_API_BASE")
	setStr(&cfg.Classifier.APIKey, "GROQ_API_KEY") // compatibility alias
	setStr(&cfg.Classifier.APIKey, "POLYSERIES_CLASSIFIER_API_KEY")
	setStr(&cfg.Classifier.Model, "GROQ_MODEL") // compatibility alias
	setStr(&cfg.Classifier.Model, "POLYSERIES_CLASSIFIER_MODEL")
	setDuration(&cfg.Classifier.Timeout, "POLYSERIES_CLASSIFIER_TIMEOUT")
	setInt(&cfg.Classifier.MaxAttempts, "POLYSERIES_CLASSIFIER_MAX_ATTEMPTS")
	setDuration(&cfg.Classifier.Delay, "POLYSERIES_CLASSIFIER_DELAY")
	setDuration(&cfg.Classifier.FailureDelay, "POLYSERIES_CLASSIFIER_FAILURE_DELAY")
	setBool(&cfg.Classifier.Reclassify, "POLYSERIES_CLASSIFIER_RECLASSIFY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYSERIES_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYSERIES_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "POLYSERIES_NOTIFY_DISCORD_WEBHOOK")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYSERIES_MODE")
	setStr(&cfg.LogLevel, "POLYSERIES_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
