package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/pagination"
	"github.com/alanyoungcy/polyseries/internal/platform/polymarket"
)

// ConditionResolver maps a market id to its condition id.
type ConditionResolver interface {
	ConditionID(ctx context.Context, marketID string) (string, error)
}

// TradeSource pages through the trades of a condition.
type TradeSource interface {
	Trades(ctx context.Context, conditionID string, offset, limit int) ([]polymarket.APITrade, error)
}

// VolumeOptions bounds the trades walk.
type VolumeOptions struct {
	PageSize  int
	OffsetCap int
}

// VolumeResult is the daily volume series of one market.
type VolumeResult struct {
	ConditionID string
	Rows        []domain.DailyVolume
	Truncated   bool
	// Cached is set when the aggregate came from the cache.
	Cached bool
	// Skipped counts trades dropped for missing or malformed fields.
	Skipped int
}

// VolumeAggregator builds daily traded notional per market.
type VolumeAggregator struct {
	resolver ConditionResolver
	trades   TradeSource
	cache    domain.AggregateCache // optional
	opts     VolumeOptions
	logger   *slog.Logger
}

// NewVolumeAggregator creates a VolumeAggregator. cache may be nil.
func NewVolumeAggregator(resolver ConditionResolver, trades TradeSource, cache domain.AggregateCache, opts VolumeOptions, logger *slog.Logger) *VolumeAggregator {
	return &VolumeAggregator{
		resolver: resolver,
		trades:   trades,
		cache:    cache,
		opts:     opts,
		logger:   logger.With(slog.String("component", "volumes")),
	}
}

// Build resolves the market's condition, aggregates its trades by UTC day and
// returns one row per requested day. A non-empty listed condition id, taken
// from the market listing, skips the lookup. The pagination truncation flag is
// copied onto every row.
func (a *VolumeAggregator) Build(ctx context.Context, marketID, listed string, days []domain.Day) (VolumeResult, error) {
	conditionID, err := a.conditionID(ctx, marketID, listed)
	if err != nil {
		return VolumeResult{}, &StageError{Stage: StageCondition, Err: err}
	}

	if agg, ok := a.cachedAggregate(ctx, conditionID); ok {
		return VolumeResult{
			ConditionID: conditionID,
			Rows:        AlignVolumes(marketID, days, agg),
			Truncated:   agg.Truncated,
			Cached:      true,
		}, nil
	}

	page := func(ctx context.Context, offset, limit int) ([]polymarket.APITrade, error) {
		return a.trades.Trades(ctx, conditionID, offset, limit)
	}
	res := pagination.Offset(ctx, page, pagination.OffsetOptions{
		PageSize:  a.opts.PageSize,
		OffsetCap: a.opts.OffsetCap,
	})
	if res.Err != nil && len(res.Items) == 0 {
		return VolumeResult{}, &StageError{Stage: StageTrades, Err: res.Err}
	}

	trades := make([]domain.Trade, 0, len(res.Items))
	skipped := 0
	for i := range res.Items {
		t, ok := res.Items[i].ToDomainTrade()
		if !ok {
			skipped++
			continue
		}
		trades = append(trades, t)
	}

	agg := AggregateTrades(trades)
	agg.Truncated = res.Truncated

	// A walk cut short by an error is not worth remembering.
	if res.Err == nil {
		a.storeAggregate(ctx, conditionID, agg)
	}

	return VolumeResult{
		ConditionID: conditionID,
		Rows:        AlignVolumes(marketID, days, agg),
		Truncated:   agg.Truncated,
		Skipped:     skipped,
	}, nil
}

func (a *VolumeAggregator) conditionID(ctx context.Context, marketID, listed string) (string, error) {
	if listed != "" {
		return listed, nil
	}
	if a.cache != nil {
		cid, err := a.cache.GetConditionID(ctx, marketID)
		if err == nil && cid != "" {
			return cid, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.logger.WarnContext(ctx, "condition cache read failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	cid, err := a.resolver.ConditionID(ctx, marketID)
	if err != nil {
		return "", fmt.Errorf("pipeline: resolve condition %s: %w", marketID, err)
	}
	if a.cache != nil {
		if err := a.cache.SetConditionID(ctx, marketID, cid); err != nil {
			a.logger.WarnContext(ctx, "condition cache write failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return cid, nil
}

func (a *VolumeAggregator) cachedAggregate(ctx context.Context, conditionID string) (domain.VolumeAggregate, bool) {
	if a.cache == nil {
		return domain.VolumeAggregate{}, false
	}
	agg, err := a.cache.GetAggregate(ctx, conditionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.WarnContext(ctx, "aggregate cache read failed",
				slog.String("condition_id", conditionID),
				slog.String("error", err.Error()),
			)
		}
		return domain.VolumeAggregate{}, false
	}
	return agg, true
}

func (a *VolumeAggregator) storeAggregate(ctx context.Context, conditionID string, agg domain.VolumeAggregate) {
	if a.cache == nil {
		return
	}
	if err := a.cache.SetAggregate(ctx, conditionID, agg); err != nil {
		a.logger.WarnContext(ctx, "aggregate cache write failed",
			slog.String("condition_id", conditionID),
			slog.String("error", err.Error()),
		)
	}
}

// AggregateTrades sums size*price and counts trades per UTC day. Trades are
// accumulated in timestamp order (stable for equal timestamps) using decimal
// arithmetic, so the result does not depend on the order pages arrived in.
// Trades with non-finite size or price are ignored.
func AggregateTrades(trades []domain.Trade) domain.VolumeAggregate {
	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	sums := make(map[domain.Day]decimal.Decimal)
	counts := make(map[domain.Day]int)
	for _, t := range sorted {
		if !finite(t.Size) || !finite(t.Price) || t.Timestamp.IsZero() {
			continue
		}
		day := domain.DayOf(t.Timestamp)
		notional := decimal.NewFromFloat(t.Size).Mul(decimal.NewFromFloat(t.Price))
		sums[day] = sums[day].Add(notional)
		counts[day]++
	}

	agg := domain.VolumeAggregate{
		VolumeByDay: make(map[domain.Day]float64, len(sums)),
		CountByDay:  counts,
	}
	for day, s := range sums {
		agg.VolumeByDay[day] = s.InexactFloat64()
	}
	return agg
}

// AlignVolumes emits one row per requested day, zero-filled where no trades
// occurred. Every row carries the aggregate's truncation flag.
func AlignVolumes(marketID string, days []domain.Day, agg domain.VolumeAggregate) []domain.DailyVolume {
	rows := make([]domain.DailyVolume, 0, len(days))
	for _, d := range days {
		rows = append(rows, domain.DailyVolume{
			MarketID:   marketID,
			Date:       d,
			Volume:     agg.VolumeByDay[d],
			TradeCount: agg.CountByDay[d],
			Truncated:  agg.Truncated,
		})
	}
	return rows
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func sortPoints(points []domain.DailyPricePoint) {
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
}
