package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/pagination"
	"github.com/alanyoungcy/polyseries/internal/platform/polymarket"
)

// PriceHistorySource walks a token's price history.
type PriceHistorySource interface {
	PriceHistory(ctx context.Context, req polymarket.PriceHistoryRequest) pagination.Result[domain.PriceSample]
}

// SeriesOptions configures the price-history walk.
type SeriesOptions struct {
	WindowDays int
	Fidelity   int
	MaxWindows int
}

// SeriesResult is the daily series of one market.
type SeriesResult struct {
	Points            []domain.DailyPricePoint
	FinalOutcomeProxy domain.Outcome
	TotalVolume       float64
	HasVolume         bool
	Truncated         bool
}

// SeriesBuilder turns a market's price history into one price per UTC day.
type SeriesBuilder struct {
	source PriceHistorySource
	opts   SeriesOptions
	now    func() time.Time
}

// NewSeriesBuilder creates a SeriesBuilder. now bounds the history range for
// markets whose end lies in the future.
func NewSeriesBuilder(source PriceHistorySource, opts SeriesOptions, now func() time.Time) *SeriesBuilder {
	if now == nil {
		now = time.Now
	}
	return &SeriesBuilder{source: source, opts: opts, now: now}
}

// Build fetches and buckets the YES price history of m and, when m has a NO
// token, joins the NO token's daily price onto the same dates. A fetch error
// with no samples collected for either token fails the market; an error after
// some samples yields the partial series marked truncated.
func (b *SeriesBuilder) Build(ctx context.Context, m domain.Market) (SeriesResult, error) {
	if m.YesTokenID == "" {
		return SeriesResult{}, fmt.Errorf("pipeline: series %s: no YES token: %w", m.ID, domain.ErrSchema)
	}
	if m.StartDate == nil {
		return SeriesResult{}, fmt.Errorf("pipeline: series %s: no start or creation time: %w", m.ID, domain.ErrSchema)
	}
	end := m.EffectiveEnd()
	if end == nil {
		return SeriesResult{}, fmt.Errorf("pipeline: series %s: no end time: %w", m.ID, domain.ErrSchema)
	}
	stop := *end
	if now := b.now().UTC(); stop.After(now) {
		stop = now
	}
	if stop.Before(*m.StartDate) {
		return SeriesResult{}, fmt.Errorf("pipeline: series %s: end %s before start %s: %w",
			m.ID, stop.Format(time.RFC3339), m.StartDate.Format(time.RFC3339), domain.ErrSchema)
	}

	yes := b.history(ctx, m.YesTokenID, *m.StartDate, stop)
	if yes.Err != nil && len(yes.Items) == 0 {
		return SeriesResult{}, fmt.Errorf("pipeline: series %s: %w", m.ID, yes.Err)
	}
	points := BucketDaily(m.ID, yes.Items)
	truncated := yes.Truncated

	if m.NoTokenID != "" {
		no := b.history(ctx, m.NoTokenID, *m.StartDate, stop)
		if no.Err != nil && len(no.Items) == 0 {
			return SeriesResult{}, fmt.Errorf("pipeline: series %s: NO token: %w", m.ID, no.Err)
		}
		JoinNoPrices(points, BucketDaily(m.ID, no.Items))
		truncated = truncated || no.Truncated
	}

	return SeriesResult{
		Points:            points,
		FinalOutcomeProxy: OutcomeProxy(points),
		TotalVolume:       m.TotalVolume,
		HasVolume:         m.HasVolume,
		Truncated:         truncated,
	}, nil
}

func (b *SeriesBuilder) history(ctx context.Context, tokenID string, start, end time.Time) pagination.Result[domain.PriceSample] {
	return b.source.PriceHistory(ctx, polymarket.PriceHistoryRequest{
		TokenID:    tokenID,
		Start:      start,
		End:        end,
		WindowDays: b.opts.WindowDays,
		Fidelity:   b.opts.Fidelity,
		MaxWindows: b.opts.MaxWindows,
	})
}

// JoinNoPrices copies the NO token's daily price onto the YES points of the
// same date. Days with only a NO sample are dropped; YES days without one keep
// HasNoPrice false.
func JoinNoPrices(points, no []domain.DailyPricePoint) {
	byDay := make(map[domain.Day]float64, len(no))
	for _, p := range no {
		byDay[p.Date] = p.YesPrice
	}
	for i := range points {
		if v, ok := byDay[points[i].Date]; ok {
			points[i].NoPrice, points[i].HasNoPrice = v, true
		}
	}
}

// BucketDaily groups samples by UTC day and keeps, for each day, the sample
// with the greatest timestamp. Equal timestamps resolve to the later sample
// in input order. Days without samples produce no point. The chosen price
// lands in YesPrice. Output is sorted by date.
func BucketDaily(marketID string, samples []domain.PriceSample) []domain.DailyPricePoint {
	type pick struct {
		ts    time.Time
		price float64
	}
	byDay := make(map[domain.Day]pick)
	for _, s := range samples {
		day := domain.DayOf(s.Timestamp)
		cur, ok := byDay[day]
		if !ok || !s.Timestamp.Before(cur.ts) {
			byDay[day] = pick{ts: s.Timestamp, price: s.Price}
		}
	}

	points := make([]domain.DailyPricePoint, 0, len(byDay))
	for day, p := range byDay {
		points = append(points, domain.DailyPricePoint{MarketID: marketID, Date: day, YesPrice: p.price})
	}
	sortPoints(points)
	return points
}

// OutcomeProxy reads the last point: above 0.5 is YES, otherwise NO. An empty
// series has no proxy.
func OutcomeProxy(points []domain.DailyPricePoint) domain.Outcome {
	if len(points) == 0 {
		return domain.OutcomeUnknown
	}
	if points[len(points)-1].YesPrice > 0.5 {
		return domain.OutcomeYes
	}
	return domain.OutcomeNo
}
