package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}

// RunScheduled runs mode once immediately and then on every tick of spec
// (standard five-field cron, UTC) until ctx is cancelled. A tick that fires
// while the previous pass is still running is skipped.
func (a *App) RunScheduled(ctx context.Context, deps *Dependencies, mode, spec string) error {
	logger := a.logger.With(slog.String("schedule", spec))
	cl := cronLogger{logger: logger}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	pass := func() {
		if ctx.Err() != nil {
			return
		}
		if err := a.RunMode(ctx, deps, mode); err != nil {
			logger.ErrorContext(ctx, "scheduled run failed", slog.String("error", err.Error()))
		}
	}

	id, err := c.AddFunc(spec, pass)
	if err != nil {
		return fmt.Errorf("app: schedule %q: %w", spec, err)
	}

	// The first pass runs through the same chain as every tick, so a tick
	// that arrives during it is skipped.
	var first sync.WaitGroup
	first.Go(c.Entry(id).WrappedJob.Run)
	c.Start()
	logger.InfoContext(ctx, "scheduler started",
		slog.Time("next", c.Entry(id).Schedule.Next(time.Now().UTC())))

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	first.Wait()
	logger.Info("scheduler stopped")
	return nil
}
