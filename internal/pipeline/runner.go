package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/output"
	"github.com/alanyoungcy/polyseries/internal/platform/polymarket"
)

// Publisher copies finished output files somewhere else, e.g. object storage.
type Publisher interface {
	Publish(ctx context.Context, dir string, files []string) error
}

// RunnerConfig holds the per-run settings.
type RunnerConfig struct {
	OutDir   string
	Workers  int
	Discover DiscoverOptions
}

// Runner executes the daily-series and volume jobs and writes their tables.
type Runner struct {
	discovery *Discovery
	series    *SeriesBuilder
	volumes   *VolumeAggregator
	sink      domain.TableSink
	publisher Publisher
	cfg       RunnerConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewRunner creates a Runner. sink and publisher may be nil.
func NewRunner(
	discovery *Discovery,
	series *SeriesBuilder,
	volumes *VolumeAggregator,
	sink domain.TableSink,
	publisher Publisher,
	cfg RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		discovery: discovery,
		series:    series,
		volumes:   volumes,
		sink:      sink,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "runner")),
	}
}

type seriesOutcome struct {
	attempted bool
	result    SeriesResult
	err       error
}

// RunDaily discovers markets, builds their daily series and rewrites
// daily.csv, market_texts.csv and markets.jsonl.
func (r *Runner) RunDaily(ctx context.Context) (Summary, error) {
	sum := NewSummary("daily", r.now())

	disc, err := r.discovery.Discover(ctx, r.cfg.Discover, r.now())
	if err != nil {
		return sum, err
	}
	sum.Discovered = disc.Listed
	sum.Retained = len(disc.Markets)
	sum.NotBinary = disc.NotBinary
	sum.OutOfWindow = disc.OutOfWindow
	sum.MissingEnd = disc.MissingEnd

	markets := disc.Markets
	outcomes := make([]seriesOutcome, len(markets))
	r.forEach(ctx, len(markets), func(ctx context.Context, i int) {
		m := markets[i]
		res, err := r.series.Build(ctx, m)
		outcomes[i] = seriesOutcome{attempted: true, result: res, err: err}
		markets[i].FinalOutcomeProxy = res.FinalOutcomeProxy
		if err != nil {
			r.logger.WarnContext(ctx, "price history failed",
				slog.String("market_id", m.ID),
				slog.String("slug", m.Slug),
				slog.String("error", err.Error()),
			)
			return
		}
		r.logger.DebugContext(ctx, "series built",
			slog.String("market_id", m.ID),
			slog.Int("days", len(res.Points)),
			slog.Bool("truncated", res.Truncated),
		)
	})

	var (
		rows     []domain.DailyRow
		texts    []domain.MarketText
		raws     []json.RawMessage
		failures []output.Failure
	)
	for i, m := range markets {
		texts = append(texts, domain.MarketText{MarketID: m.ID, Slug: m.Slug, Title: m.Title, Description: m.Description})
		if len(m.Raw) > 0 {
			raws = append(raws, m.Raw)
		}

		o := outcomes[i]
		switch {
		case !o.attempted:
			sum.Skipped++
			failures = append(failures, output.Failure{MarketID: m.ID, Stage: StagePrices, Error: errCancelled})
		case o.err != nil:
			sum.Failed++
			failures = append(failures, output.Failure{MarketID: m.ID, Stage: StagePrices, Error: o.err.Error()})
		default:
			sum.Succeeded++
			if o.result.Truncated {
				sum.Truncated++
			}
			rows = append(rows, dailyRows(m, o.result)...)
		}
	}

	if ctx.Err() != nil {
		return r.interrupted(ctx, sum, failures, StagePrices)
	}

	dir := r.cfg.OutDir
	if err := output.WriteTable(filepath.Join(dir, output.DailyFile), output.DailyTable(rows)); err != nil {
		return sum, err
	}
	if err := output.WriteTable(filepath.Join(dir, output.TextsFile), output.TextsTable(texts)); err != nil {
		return sum, err
	}
	if err := output.WriteJSONL(filepath.Join(dir, output.MarketsJSONL), raws); err != nil {
		return sum, err
	}
	if err := r.writeFailures(failures, StagePrices); err != nil {
		return sum, err
	}

	if r.sink != nil {
		if err := r.sink.ReplaceDailySeries(ctx, rows); err != nil {
			r.logger.ErrorContext(ctx, "mirror daily series failed", slog.String("error", err.Error()))
		}
		if err := r.sink.ReplaceMarketTexts(ctx, texts); err != nil {
			r.logger.ErrorContext(ctx, "mirror market texts failed", slog.String("error", err.Error()))
		}
	}
	r.publish(ctx, output.DailyFile, output.TextsFile, output.MarketsJSONL, output.FailuresFile)

	sum.FinishedAt = r.now().UTC()
	return sum, nil
}

type volumeOutcome struct {
	attempted bool
	result    VolumeResult
	err       error
}

// RunVolumes rebuilds daily_volumes.csv for the markets and dates currently
// in daily.csv.
func (r *Runner) RunVolumes(ctx context.Context) (Summary, error) {
	sum := NewSummary("volumes", r.now())

	daily, err := output.ReadFile(filepath.Join(r.cfg.OutDir, output.DailyFile), output.DailyKey)
	if err != nil {
		return sum, fmt.Errorf("pipeline: volumes: %w", err)
	}
	needed, err := output.MarketDates(daily)
	if err != nil {
		return sum, fmt.Errorf("pipeline: volumes: %w", err)
	}
	ids := make([]string, 0, len(needed))
	for id := range needed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sum.Discovered = len(ids)
	sum.Retained = len(ids)

	// Condition ids the listing already carried skip the Gamma lookup.
	records, err := output.ReadJSONL(filepath.Join(r.cfg.OutDir, output.MarketsJSONL))
	if err != nil {
		r.logger.WarnContext(ctx, "read listing records failed, resolving every condition",
			slog.String("error", err.Error()))
	}
	listed := polymarket.ListingConditionIDs(records)

	outcomes := make([]volumeOutcome, len(ids))
	r.forEach(ctx, len(ids), func(ctx context.Context, i int) {
		res, err := r.volumes.Build(ctx, ids[i], listed[ids[i]], needed[ids[i]])
		outcomes[i] = volumeOutcome{attempted: true, result: res, err: err}
		if err != nil {
			r.logger.WarnContext(ctx, "volume build failed",
				slog.String("market_id", ids[i]),
				slog.String("error", err.Error()),
			)
		}
	})

	var (
		rows     []domain.DailyVolume
		failures []output.Failure
	)
	for i, id := range ids {
		o := outcomes[i]
		switch {
		case !o.attempted:
			sum.Skipped++
			failures = append(failures, output.Failure{MarketID: id, Stage: StageTrades, Error: errCancelled})
		case o.err != nil:
			sum.Failed++
			stage := StageTrades
			var se *StageError
			if errors.As(o.err, &se) {
				stage = se.Stage
			}
			failures = append(failures, output.Failure{MarketID: id, Stage: stage, Error: o.err.Error()})
		default:
			sum.Succeeded++
			if o.result.Truncated {
				sum.Truncated++
			}
			if o.result.Cached {
				sum.Cached++
			}
			rows = append(rows, o.result.Rows...)
		}
	}

	if ctx.Err() != nil {
		return r.interrupted(ctx, sum, failures, StageCondition, StageTrades)
	}

	if err := output.WriteTable(filepath.Join(r.cfg.OutDir, output.VolumesFile), output.VolumesTable(rows)); err != nil {
		return sum, err
	}
	if err := r.writeFailures(failures, StageCondition, StageTrades); err != nil {
		return sum, err
	}
	if r.sink != nil {
		if err := r.sink.ReplaceDailyVolumes(ctx, rows); err != nil {
			r.logger.ErrorContext(ctx, "mirror daily volumes failed", slog.String("error", err.Error()))
		}
	}
	r.publish(ctx, output.VolumesFile, output.FailuresFile)

	sum.FinishedAt = r.now().UTC()
	return sum, nil
}

// errCancelled is the failures.csv error of a market the run never reached.
const errCancelled = "cancelled"

// interrupted finishes a run whose context ended before every market was
// attempted. Only failures.csv is rewritten; the previous data tables, the
// sink and the published copies are left as they were.
func (r *Runner) interrupted(ctx context.Context, sum Summary, failures []output.Failure, stages ...string) (Summary, error) {
	cause := ctx.Err()
	r.logger.WarnContext(ctx, "run interrupted, keeping previous outputs",
		slog.String("job", sum.Job),
		slog.Int("skipped", sum.Skipped),
		slog.String("error", cause.Error()),
	)
	sum.FinishedAt = r.now().UTC()
	if err := r.writeFailures(failures, stages...); err != nil {
		return sum, errors.Join(fmt.Errorf("pipeline: %s run interrupted: %w", sum.Job, cause), err)
	}
	return sum, fmt.Errorf("pipeline: %s run interrupted: %w", sum.Job, cause)
}

// forEach runs fn for indexes [0, n) on at most cfg.Workers goroutines. Once
// ctx is done no new index is started.
func (r *Runner) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// writeFailures replaces the failures.csv rows of the given stages.
func (r *Runner) writeFailures(fresh []output.Failure, stages ...string) error {
	return WriteFailures(r.cfg.OutDir, fresh, stages...)
}

// WriteFailures replaces the failures.csv rows of the given stages with fresh,
// keeping rows written by other jobs.
func WriteFailures(dir string, fresh []output.Failure, stages ...string) error {
	path := filepath.Join(dir, output.FailuresFile)
	existing, err := output.ReadFileOrEmpty(path, output.FailuresHeader, output.FailuresKey)
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(stages))
	for _, s := range stages {
		drop[s] = true
	}
	table := output.FailuresTable(fresh)
	for _, row := range existing.Project(output.FailuresHeader).Rows {
		if drop[row[1]] {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return output.WriteTable(path, table)
}

func (r *Runner) publish(ctx context.Context, files ...string) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, r.cfg.OutDir, files); err != nil {
		r.logger.ErrorContext(ctx, "publish outputs failed", slog.String("error", err.Error()))
	}
}

func dailyRows(m domain.Market, res SeriesResult) []domain.DailyRow {
	tdays, hasTDays := m.TDays()
	rows := make([]domain.DailyRow, 0, len(res.Points))
	for _, p := range res.Points {
		rows = append(rows, domain.DailyRow{
			Point:               p,
			Slug:                m.Slug,
			Title:               m.Title,
			TotalVolume:         res.TotalVolume,
			HasVolume:           res.HasVolume,
			FinalOutcomeProxy:   m.FinalOutcomeProxy,
			UMAResolutionStatus: m.UMAResolutionStatus,
			TDays:               tdays,
			HasTDays:            hasTDays,
			StartTS:             unixOrZero(m.StartDate),
			EndDateTS:           unixOrZero(m.EndDate),
			ClosedTS:            unixOrZero(m.ClosedTime),
			Truncated:           res.Truncated,
		})
	}
	return rows
}

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
