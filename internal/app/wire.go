package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/polyseries/internal/blob/s3"
	"github.com/alanyoungcy/polyseries/internal/cache/redis"
	"github.com/alanyoungcy/polyseries/internal/cache/sqlite"
	"github.com/alanyoungcy/polyseries/internal/classify"
	"github.com/alanyoungcy/polyseries/internal/config"
	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/fetch"
	"github.com/alanyoungcy/polyseries/internal/notify"
	"github.com/alanyoungcy/polyseries/internal/pipeline"
	"github.com/alanyoungcy/polyseries/internal/platform/llm"
	"github.com/alanyoungcy/polyseries/internal/platform/polymarket"
	"github.com/alanyoungcy/polyseries/internal/store/postgres"
)

// classifyRetryDelay is the pause before asking the model again after an
// invalid answer.
const classifyRetryDelay = 500 * time.Millisecond

// Dependencies bundles what the modes need. Optional parts are nil when
// disabled.
type Dependencies struct {
	Runner   *pipeline.Runner
	Classify *classify.Job

	// BlobReader restores missing inputs before a run.
	BlobReader domain.BlobReader
	// Lock keeps replicas sharing a redis cache from running concurrently.
	Lock domain.RunLocker
	// Notifier announces finished and failed runs; nil when no channel is set.
	Notifier *notify.Notifier
}

// Wire builds every collaborator from cfg. The returned cleanup releases
// connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	if err := os.MkdirAll(cfg.Run.Out, 0o755); err != nil {
		return fail(fmt.Errorf("wire: create output dir: %w", err))
	}

	retry := fetch.RetryPolicy{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BaseDelay:   cfg.Fetch.BaseDelay.Duration,
		MaxDelay:    cfg.Fetch.MaxDelay.Duration,
	}
	// One limiter for every upstream: the request budget is process-wide.
	fetcher := fetch.New(fetch.NewLimiter(cfg.Fetch.RPS), fetch.Options{
		Timeout:   cfg.Polymarket.Timeout.Duration,
		UserAgent: cfg.Polymarket.UserAgent,
		Retry:     retry,
	}, logger)

	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, fetcher)
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, fetcher)
	data := polymarket.NewDataClient(cfg.Polymarket.DataHost, fetcher)

	// --- Aggregate cache ---
	var cache domain.AggregateCache
	switch strings.ToLower(cfg.Cache.Backend) {
	case "sqlite":
		c, err := sqlite.Open(cfg.Cache.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite cache: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		cache = c
	case "redis":
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			TTL:        cfg.Cache.TTL.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis cache: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		cache = redis.NewAggregateCache(rc)
		deps.Lock = redis.NewRunLock(rc)
	}

	// --- PostgreSQL mirror ---
	var sink domain.TableSink
	if cfg.Supabase.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		if cfg.Supabase.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		sink = postgres.NewTableSink(pg)
	}

	// --- S3 publishing ---
	var publisher pipeline.Publisher
	if cfg.S3.Enabled {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3c.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, uploads may fail", slog.String("error", err.Error()))
		}
		publisher = s3blob.NewPublisher(s3blob.NewWriter(s3c), s3blob.PublisherConfig{
			Prefix:  cfg.S3.Prefix,
			Archive: cfg.S3.Archive,
		}, logger)
		if cfg.S3.Restore {
			deps.BlobReader = s3blob.NewReader(s3c)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Pipeline ---
	discovery := pipeline.NewDiscovery(gamma, logger)
	series := pipeline.NewSeriesBuilder(clob, pipeline.SeriesOptions{
		WindowDays: cfg.Series.WindowDays,
		Fidelity:   cfg.Series.Fidelity,
		MaxWindows: cfg.Series.MaxWindows,
	}, time.Now)
	volumes := pipeline.NewVolumeAggregator(gamma, data, cache, pipeline.VolumeOptions{
		PageSize:  cfg.Trades.PageSize,
		OffsetCap: cfg.Trades.OffsetCap,
	}, logger)
	deps.Runner = pipeline.NewRunner(discovery, series, volumes, sink, publisher, pipeline.RunnerConfig{
		OutDir:  cfg.Run.Out,
		Workers: cfg.Run.Workers,
		Discover: pipeline.DiscoverOptions{
			MaxMarkets:       cfg.Discovery.MaxMarkets,
			Months:           cfg.Discovery.Months,
			PageSize:         cfg.Discovery.Limit,
			Order:            cfg.Discovery.Order,
			Ascending:        cfg.Discovery.Ascending,
			UseAPIDateFilter: cfg.Discovery.UseAPIDateFilter,
		},
	}, logger)

	// --- Classifier ---
	if cfg.NeedsClassifier() {
		client, err := llm.New(llm.Config{
			BaseURL: cfg.Classifier.APIBase,
			APIKey:  cfg.Classifier.APIKey,
			Model:   cfg.Classifier.Model,
			Timeout: cfg.Classifier.Timeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: classifier: %w", err))
		}
		classifier := classify.NewLLMClassifier(client, classify.Options{
			MaxAttempts: cfg.Classifier.MaxAttempts,
			RetryDelay:  classifyRetryDelay,
			Request:     retry,
		})
		deps.Classify = classify.NewJob(classifier, sink, publisher, classify.JobOptions{
			OutDir:       cfg.Run.Out,
			Delay:        cfg.Classifier.Delay.Duration,
			FailureDelay: cfg.Classifier.FailureDelay.Duration,
			Reclassify:   cfg.Classifier.Reclassify,
		}, logger)
	}

	return deps, cleanup, nil
}
