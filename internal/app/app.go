// Package app wires the configured collaborators (Polymarket clients, cache,
// mirror database, object storage, classifier) into the pipeline jobs and
// runs the selected mode once or on a schedule.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyseries/internal/config"
)

// App owns the configuration, logger and the cleanup functions registered
// while wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and executes the configured mode. With a schedule
// it runs once immediately and then on every cron tick until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting polyseries",
		slog.String("mode", a.cfg.Mode),
		slog.String("out", a.cfg.Run.Out),
		slog.String("schedule", a.cfg.Run.Schedule),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	if a.cfg.Run.Schedule == "" {
		return a.RunMode(ctx, deps, mode)
	}
	return a.RunScheduled(ctx, deps, mode, a.cfg.Run.Schedule)
}

// Close runs the cleanup functions in reverse order. Safe to call twice.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
