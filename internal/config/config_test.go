package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Fetch.RPS = 0
	cfg.Discovery.Months = 0
	cfg.Cache.Backend = "memcached"
	cfg.Run.Schedule = "every tuesday"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("want error")
	}
	for _, want := range []string{"unknown mode", "rps must be > 0", "months must be >= 1", "unknown backend", "invalid schedule"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error lacks %q:\n%v", want, err)
		}
	}
}

func TestValidateClassifierNeedsKey(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeClassify
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("got %v", err)
	}
	cfg.Classifier.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("got %v", err)
	}
}

func TestValidateSchedule(t *testing.T) {
	cfg := Defaults()
	for _, spec := range []string{"0 6 * * *", "@every 1h", "@daily"} {
		cfg.Run.Schedule = spec
		if err := cfg.Validate(); err != nil {
			t.Errorf("schedule %q: %v", spec, err)
		}
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
mode = "volumes"

[fetch]
rps = 2.5
base_delay = "250ms"

[discovery]
max_markets = 50
use_api_date_filter = true

[classifier]
delay = "1s"
`
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("POLYSERIES_RUN_WORKERS", "4")
	t.Setenv("POLYSERIES_DISCOVERY_MONTHS", "not-a-number")
	t.Setenv("GROQ_API_KEY", "from-groq")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "volumes" || cfg.Fetch.RPS != 2.5 || cfg.Fetch.BaseDelay.Duration != 250*time.Millisecond {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Discovery.MaxMarkets != 50 || !cfg.Discovery.UseAPIDateFilter {
		t.Fatalf("discovery = %+v", cfg.Discovery)
	}
	if cfg.Fetch.MaxDelay.Duration != 16*time.Second {
		t.Fatalf("default lost: %v", cfg.Fetch.MaxDelay)
	}
	if cfg.Classifier.Delay.Duration != time.Second {
		t.Fatalf("classifier delay = %v", cfg.Classifier.Delay)
	}
	if cfg.Run.Workers != 4 {
		t.Fatalf("workers = %d", cfg.Run.Workers)
	}
	if cfg.Discovery.Months != 6 {
		t.Fatalf("unparseable env should be ignored, months = %d", cfg.Discovery.Months)
	}
	if cfg.Classifier.APIKey != "from-groq" {
		t.Fatalf("api key = %q", cfg.Classifier.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("want error")
	}
}

func TestOverrides(t *testing.T) {
	cfg := Defaults()
	months, rps, out := 3, 1.5, "elsewhere"
	Overrides{Months: &months, RPS: &rps, Out: &out}.Apply(&cfg)
	if cfg.Discovery.Months != 3 || cfg.Fetch.RPS != 1.5 || cfg.Run.Out != "elsewhere" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Discovery.MaxMarkets != 20 {
		t.Fatalf("unset override changed max_markets: %d", cfg.Discovery.MaxMarkets)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Classifier.APIKey = "sk-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Supabase.DSN = "postgres://u:p@h/db"

	red := RedactedConfig(&cfg)
	if red.Classifier.APIKey != redacted || red.S3.SecretKey != redacted || red.Supabase.DSN != redacted {
		t.Fatalf("not redacted: %+v", red)
	}
	if red.S3.AccessKey != "" {
		t.Fatal("empty secret should stay empty")
	}
	if cfg.Classifier.APIKey != "sk-secret" {
		t.Fatal("original modified")
	}
}

func TestValidateTelegramPair(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "tok"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "telegram_chat_id") {
		t.Fatalf("err = %v", err)
	}
	cfg.Notify.TelegramChatID = "42"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestExampleMatchesDefaults(t *testing.T) {
	for _, k := range []string{"GROQ_API_KEY", "GROQ_API_BASE", "GROQ_MODEL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*cfg, Defaults()) {
		t.Errorf("config.example.toml drifted from Defaults():\n got %+v\nwant %+v", *cfg, Defaults())
	}
}
