package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/polyseries/internal/config"
	"github.com/alanyoungcy/polyseries/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Run.Out = filepath.Join(t.TempDir(), "out")
	cfg.Cache.Backend = "none"
	return &cfg
}

func TestWireWithoutOptionalServices(t *testing.T) {
	cfg := offlineConfig(t)

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Runner == nil {
		t.Fatal("runner not wired")
	}
	if deps.Classify != nil {
		t.Error("classifier wired for daily mode")
	}
	if deps.BlobReader != nil {
		t.Error("blob reader wired with s3 disabled")
	}
}

func TestWireClassifierForAllMode(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Mode = config.ModeAll
	cfg.Classifier.APIKey = "test-key"

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Classify == nil {
		t.Fatal("classifier not wired for all mode")
	}
}

func TestWireSQLiteCache(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Cache.Backend = "sqlite"
	cfg.Cache.SQLitePath = filepath.Join(t.TempDir(), "cache", "agg.db")

	_, cleanup, err := Wire(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	cleanup()
}

func TestRunModeRejectsUnknownMode(t *testing.T) {
	cfg := offlineConfig(t)
	a := New(cfg, testLogger())

	err := a.RunMode(context.Background(), &Dependencies{}, "backfill")
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("err = %v, want unknown mode", err)
	}
}

func TestRunModeClassifyNeedsClassifier(t *testing.T) {
	cfg := offlineConfig(t)
	a := New(cfg, testLogger())

	if err := a.RunMode(context.Background(), &Dependencies{}, config.ModeClassify); err == nil {
		t.Fatal("expected error without a classifier")
	}
}

func TestRestoreFilesCoverEveryMode(t *testing.T) {
	for _, mode := range []string{config.ModeDaily, config.ModeVolumes, config.ModeClassify, config.ModeAll} {
		if len(restoreFiles[mode]) == 0 {
			t.Errorf("no restore files for mode %q", mode)
		}
	}
}

func TestCronLoggerIncludesError(t *testing.T) {
	var buf strings.Builder
	l := cronLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Error(errors.New("boom"), "panic", "job", 1)

	out := buf.String()
	if !strings.Contains(out, "error=boom") || !strings.Contains(out, "cron: panic") {
		t.Errorf("log line = %q", out)
	}
}

func TestRunScheduledStopsOnCancel(t *testing.T) {
	cfg := offlineConfig(t)
	a := New(cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With ctx already done the first pass returns immediately.
	if err := a.RunScheduled(ctx, &Dependencies{}, "backfill", "0 * * * *"); err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
}

func TestRunScheduledRejectsBadSchedule(t *testing.T) {
	cfg := offlineConfig(t)
	a := New(cfg, testLogger())

	if err := a.RunScheduled(context.Background(), &Dependencies{}, config.ModeDaily, "not a cron"); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestRunModeRespectsRunLock(t *testing.T) {
	cfg := offlineConfig(t)
	a := New(cfg, testLogger())

	err := a.RunMode(context.Background(), &Dependencies{Lock: heldLock{}}, config.ModeDaily)
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
}
