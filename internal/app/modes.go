package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	s3blob "github.com/alanyoungcy/polyseries/internal/blob/s3"
	"github.com/alanyoungcy/polyseries/internal/config"
	"github.com/alanyoungcy/polyseries/internal/notify"
	"github.com/alanyoungcy/polyseries/internal/output"
	"github.com/alanyoungcy/polyseries/internal/pipeline"
)

// restoreFiles lists, per mode, the files a run reads back before writing.
var restoreFiles = map[string][]string{
	config.ModeDaily:    {output.FailuresFile},
	config.ModeVolumes:  {output.DailyFile, output.MarketsJSONL, output.FailuresFile},
	config.ModeClassify: {output.DailyFile, output.TextsFile, output.MetadataFile, output.FailuresFile},
	config.ModeAll:      {output.FailuresFile, output.MetadataFile},
}

// runLockTTL bounds how long a crashed run can block the next one.
const runLockTTL = 6 * time.Hour

// RunMode executes one pass of mode.
func (a *App) RunMode(ctx context.Context, deps *Dependencies, mode string) error {
	if deps.Lock != nil {
		release, err := deps.Lock.Acquire(ctx, "run", runLockTTL)
		if err != nil {
			return fmt.Errorf("app: %s run: %w", mode, err)
		}
		defer release()
	}

	if err := a.restore(ctx, deps, mode); err != nil {
		return err
	}

	switch mode {
	case config.ModeDaily:
		return a.report(ctx, deps, deps.Runner.RunDaily)
	case config.ModeVolumes:
		return a.report(ctx, deps, deps.Runner.RunVolumes)
	case config.ModeClassify:
		if deps.Classify == nil {
			return errors.New("app: classify mode without a classifier")
		}
		return a.report(ctx, deps, deps.Classify.Run)
	case config.ModeAll:
		return a.runAll(ctx, deps)
	default:
		return fmt.Errorf("app: unknown mode %q", mode)
	}
}

// runAll chains daily, volumes and classify. Each job reads what the
// previous one wrote, so a fatal error stops the chain.
func (a *App) runAll(ctx context.Context, deps *Dependencies) error {
	jobs := []func(context.Context) (pipeline.Summary, error){
		deps.Runner.RunDaily,
		deps.Runner.RunVolumes,
	}
	if deps.Classify != nil {
		jobs = append(jobs, deps.Classify.Run)
	}
	for _, job := range jobs {
		if err := a.report(ctx, deps, job); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// report runs job, logs its summary (even a partial one) and notifies.
func (a *App) report(ctx context.Context, deps *Dependencies, job func(context.Context) (pipeline.Summary, error)) error {
	sum, err := job(ctx)
	if sum.Job != "" {
		sum.Log(a.logger)
		fmt.Fprintln(os.Stderr, sum.String())
	}
	a.notify(deps.Notifier, sum, err)
	return err
}

// notify runs on a fresh context so a shutdown still announces itself.
func (a *App) notify(n *notify.Notifier, sum pipeline.Summary, runErr error) {
	if !n.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	event, title := notify.EventRunFinished, "polyseries "+sum.Job+" finished"
	msg := sum.String()
	if runErr != nil {
		event, title = notify.EventRunFailed, "polyseries "+sum.Job+" failed"
		msg = runErr.Error() + "\n" + msg
	}
	// Sender errors are already logged by the notifier.
	_ = n.Notify(ctx, event, title, msg)
}

func (a *App) restore(ctx context.Context, deps *Dependencies, mode string) error {
	if deps.BlobReader == nil {
		return nil
	}
	restored, err := s3blob.Restore(ctx, deps.BlobReader, a.cfg.S3.Prefix, a.cfg.Run.Out, restoreFiles[mode])
	if len(restored) > 0 {
		a.logger.InfoContext(ctx, "restored output files from s3", slog.Any("files", restored))
	}
	if err != nil {
		return fmt.Errorf("app: restore outputs: %w", err)
	}
	return nil
}
