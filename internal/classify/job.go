package classify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/output"
	"github.com/alanyoungcy/polyseries/internal/pipeline"
)

// JobOptions configures a classification run.
type JobOptions struct {
	OutDir       string
	Delay        time.Duration // pause after every market
	FailureDelay time.Duration // extra pause after a failed market
	Reclassify   bool          // also redo markets that already have an ok row
}

// Job classifies the markets of daily.csv that have texts and merges the
// results into market_metadata.csv.
type Job struct {
	classifier Classifier
	sink       domain.TableSink
	publisher  pipeline.Publisher
	opts       JobOptions
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// NewJob creates a Job. sink and publisher may be nil.
func NewJob(classifier Classifier, sink domain.TableSink, publisher pipeline.Publisher, opts JobOptions, logger *slog.Logger) *Job {
	return &Job{
		classifier: classifier,
		sink:       sink,
		publisher:  publisher,
		opts:       opts,
		now:        time.Now,
		sleep:      sleepContext,
		logger:     logger.With(slog.String("component", "classify")),
	}
}

// Run classifies pending markets one at a time. Markets not reached before
// ctx is done are counted as skipped; results gathered so far are written.
func (j *Job) Run(ctx context.Context) (pipeline.Summary, error) {
	sum := pipeline.NewSummary("classify", j.now())
	dir := j.opts.OutDir

	ids, err := dailyMarketIDs(filepath.Join(dir, output.DailyFile))
	if err != nil {
		return sum, err
	}
	texts, err := readTexts(filepath.Join(dir, output.TextsFile))
	if err != nil {
		return sum, err
	}
	metaPath := filepath.Join(dir, output.MetadataFile)
	existing, err := output.ReadFileOrEmpty(metaPath, output.MetadataHeader, output.MetadataKey)
	if err != nil {
		return sum, fmt.Errorf("classify: %w", err)
	}
	done, err := okMarkets(existing)
	if err != nil {
		return sum, err
	}

	sum.Discovered = len(ids)
	var pending []domain.MarketText
	for _, id := range ids {
		text, ok := texts[id]
		if !ok {
			continue
		}
		sum.Retained++
		if done[id] && !j.opts.Reclassify {
			sum.Skipped++
			continue
		}
		pending = append(pending, text)
	}
	j.logger.InfoContext(ctx, "classifying markets",
		slog.Int("pending", len(pending)),
		slog.Int("already_ok", sum.Skipped),
	)

	var (
		results  []domain.Classification
		failures []output.Failure
	)
	for i, m := range pending {
		if ctx.Err() != nil {
			sum.Skipped += len(pending) - i
			break
		}

		c, err := j.classifier.Classify(ctx, m.Title, m.Description)
		if err != nil {
			if ctx.Err() != nil {
				sum.Skipped += len(pending) - i
				break
			}
			j.logger.WarnContext(ctx, "classification request failed",
				slog.String("market_id", m.MarketID),
				slog.String("error", err.Error()),
			)
			c = domain.Classification{Status: domain.ClassificationError, Error: CodeRequestFailed}
			failures = append(failures, output.Failure{MarketID: m.MarketID, Stage: pipeline.StageClassify, Error: err.Error()})
		} else if c.Status != domain.ClassificationOK {
			failures = append(failures, output.Failure{MarketID: m.MarketID, Stage: pipeline.StageClassify, Error: c.Error})
		}
		c.MarketID = m.MarketID
		c.Slug = m.Slug
		results = append(results, c)

		if c.Status == domain.ClassificationOK {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		j.logger.DebugContext(ctx, "market classified",
			slog.String("market_id", m.MarketID),
			slog.String("status", c.Status),
			slog.Int("done", i+1),
			slog.Int("total", len(pending)),
		)

		wait := j.opts.Delay
		if c.Status != domain.ClassificationOK {
			wait += j.opts.FailureDelay
		}
		// An interrupted pause ends the loop on the next ctx check.
		_ = j.sleep(ctx, wait)
	}

	merged := output.Merge(existing, output.MetadataTable(results))
	if err := output.WriteTable(metaPath, merged); err != nil {
		return sum, err
	}
	if err := pipeline.WriteFailures(dir, failures, pipeline.StageClassify); err != nil {
		return sum, err
	}

	if j.sink != nil && len(results) > 0 {
		if err := j.sink.UpsertClassifications(ctx, results); err != nil {
			j.logger.ErrorContext(ctx, "mirror classifications failed", slog.String("error", err.Error()))
		}
	}
	if j.publisher != nil {
		if err := j.publisher.Publish(ctx, dir, []string{output.MetadataFile, output.FailuresFile}); err != nil {
			j.logger.ErrorContext(ctx, "publish outputs failed", slog.String("error", err.Error()))
		}
	}

	sum.FinishedAt = j.now().UTC()
	return sum, nil
}

// dailyMarketIDs returns the distinct market ids of daily.csv in file order.
func dailyMarketIDs(path string) ([]string, error) {
	t, err := output.ReadFile(path, output.DailyKey)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	mc := t.Column("market_id")
	if mc < 0 {
		return nil, fmt.Errorf("classify: %s lacks market_id column", path)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, row := range t.Rows {
		if id := row[mc]; id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func readTexts(path string) (map[string]domain.MarketText, error) {
	t, err := output.ReadFile(path, output.TextsKey)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	list, err := output.ParseTexts(t)
	if err != nil {
		return nil, fmt.Errorf("classify: %s: %w", path, err)
	}
	out := make(map[string]domain.MarketText, len(list))
	for _, m := range list {
		out[m.MarketID] = m
	}
	return out, nil
}

func okMarkets(t output.Table) (map[string]bool, error) {
	rows, err := output.ParseMetadata(t)
	if err != nil {
		return nil, fmt.Errorf("classify: %s: %w", output.MetadataFile, err)
	}
	out := make(map[string]bool, len(rows))
	for _, c := range rows {
		if c.Status == domain.ClassificationOK {
			out[c.MarketID] = true
		}
	}
	return out, nil
}
