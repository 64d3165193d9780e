package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/pagination"
	"github.com/alanyoungcy/polyseries/internal/platform/polymarket"
)

// daysPerMonth is the fixed month length used for the discovery window.
const daysPerMonth = 30.4

// ErrListingUnavailable is returned when not even the first listing page
// could be fetched.
var ErrListingUnavailable = errors.New("market listing unavailable")

// MarketLister pages through the closed-markets listing.
type MarketLister interface {
	ListClosedMarkets(ctx context.Context, q polymarket.ListQuery, offset, limit int) ([]polymarket.Listing, error)
}

// DiscoverOptions configures one discovery pass.
type DiscoverOptions struct {
	MaxMarkets int // cap on listed records; 0 means no cap
	Months     int
	PageSize   int

	Order            string
	Ascending        bool
	UseAPIDateFilter bool
}

// DiscoveryResult is the retained market set plus listing counters.
type DiscoveryResult struct {
	Markets []domain.Market
	Cutoff  time.Time

	Listed      int
	NotBinary   int
	OutOfWindow int
	MissingEnd  int
	// Truncated is set when a listing page failed after the first one, so
	// the market set may be incomplete.
	Truncated bool
}

// Discovery selects closed binary markets whose effective end falls inside
// the lookback window.
type Discovery struct {
	lister MarketLister
	logger *slog.Logger
}

// NewDiscovery creates a Discovery.
func NewDiscovery(lister MarketLister, logger *slog.Logger) *Discovery {
	return &Discovery{
		lister: lister,
		logger: logger.With(slog.String("component", "discovery")),
	}
}

// Cutoff returns now minus months of 30.4 days, truncated to whole days.
func Cutoff(now time.Time, months int) time.Time {
	days := int(float64(months) * daysPerMonth)
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// InWindow reports whether m's effective end is at or after cutoff, compared
// in whole Unix seconds. Markets without closedTime or endDate are out.
func InWindow(m *domain.Market, cutoff time.Time) bool {
	end := m.EffectiveEnd()
	if end == nil {
		return false
	}
	return end.Unix() >= cutoff.Unix()
}

// Discover lists closed markets and keeps the binary ones inside the window.
func (d *Discovery) Discover(ctx context.Context, opts DiscoverOptions, now time.Time) (DiscoveryResult, error) {
	cutoff := Cutoff(now, opts.Months)
	q := polymarket.ListQuery{Order: opts.Order, Ascending: opts.Ascending}
	if opts.UseAPIDateFilter {
		c := cutoff
		q.EndDateMin = &c
	}

	page := func(ctx context.Context, offset, limit int) ([]polymarket.Listing, error) {
		return d.lister.ListClosedMarkets(ctx, q, offset, limit)
	}
	res := pagination.Offset(ctx, page, pagination.OffsetOptions{
		PageSize: opts.PageSize,
		MaxItems: opts.MaxMarkets,
	})
	if res.Err != nil && len(res.Items) == 0 {
		return DiscoveryResult{}, fmt.Errorf("pipeline: discover: %w: %w", ErrListingUnavailable, res.Err)
	}

	out := DiscoveryResult{
		Cutoff:    cutoff,
		Listed:    len(res.Items),
		Truncated: res.Truncated,
	}
	if res.Err != nil {
		d.logger.WarnContext(ctx, "market listing incomplete",
			slog.Int("listed", len(res.Items)),
			slog.String("error", res.Err.Error()),
		)
	}

	for _, l := range res.Items {
		if !l.Binary {
			out.NotBinary++
			continue
		}
		m := l.Market
		if m.EffectiveEnd() == nil {
			out.MissingEnd++
			continue
		}
		if !InWindow(&m, cutoff) {
			out.OutOfWindow++
			continue
		}
		out.Markets = append(out.Markets, m)
	}

	d.logger.InfoContext(ctx, "discovery complete",
		slog.Time("cutoff", cutoff),
		slog.Int("listed", out.Listed),
		slog.Int("not_binary", out.NotBinary),
		slog.Int("missing_end", out.MissingEnd),
		slog.Int("out_of_window", out.OutOfWindow),
		slog.Int("retained", len(out.Markets)),
		slog.Bool("truncated", out.Truncated),
	)
	return out, nil
}
