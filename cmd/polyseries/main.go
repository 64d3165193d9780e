// Command polyseries builds per-market daily price, volume and
// classification tables for resolved binary Polymarket markets. It loads
// configuration, applies command-line overrides, validates the result and
// runs the selected mode once or on a cron schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/polyseries/internal/app"
	"github.com/alanyoungcy/polyseries/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file (empty uses defaults)")
	mode := flag.String("mode", "", "job to run: daily, volumes, classify or all")
	maxMarkets := flag.Int("max-markets", 0, "maximum number of listed markets to consider (0 = unlimited)")
	months := flag.Int("months", 0, "how many months back a market's end date may lie")
	limit := flag.Int("limit", 0, "listing page size")
	rps := flag.Float64("rps", 0, "upstream requests per second")
	out := flag.String("out", "", "output directory")
	schedule := flag.String("schedule", "", "cron expression; run repeatedly instead of once")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Only flags given on the command line override the file.
	var ov config.Overrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			ov.Mode = mode
		case "max-markets":
			ov.MaxMarkets = maxMarkets
		case "months":
			ov.Months = months
		case "limit":
			ov.Limit = limit
		case "rps":
			ov.RPS = rps
		case "out":
			ov.Out = out
		case "schedule":
			ov.Schedule = schedule
		}
	})
	ov.Apply(cfg)

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// The interrupted run kept the previous data tables.
			logger.Warn("polyseries interrupted before the run completed", slog.String("error", err.Error()))
			application.Close()
			os.Exit(130)
		}
		logger.Error("polyseries exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		application.Close()
		os.Exit(1)
	}

	logger.Info("polyseries stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
