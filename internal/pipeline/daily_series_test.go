package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/pagination"
	"github.com/alanyoungcy/polyseries/internal/platform/polymarket"
)

type fakeHistory struct {
	res  pagination.Result[domain.PriceSample]
	reqs []polymarket.PriceHistoryRequest
}

func (f *fakeHistory) PriceHistory(_ context.Context, req polymarket.PriceHistoryRequest) pagination.Result[domain.PriceSample] {
	f.reqs = append(f.reqs, req)
	return f.res
}

func sample(ts string, p float64) domain.PriceSample {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return domain.PriceSample{Timestamp: t, Price: p}
}

func TestBucketDailyLastSampleWins(t *testing.T) {
	got := BucketDaily("m", []domain.PriceSample{
		sample("2024-01-05T08:00:00Z", 0.40),
		sample("2024-01-05T20:00:00Z", 0.55),
	})
	if len(got) != 1 || got[0].Date != "2024-01-05" || got[0].YesPrice != 0.55 {
		t.Fatalf("got %+v", got)
	}
}

func TestBucketDailyOutOfOrderAndGaps(t *testing.T) {
	got := BucketDaily("m", []domain.PriceSample{
		sample("2024-01-07T10:00:00Z", 0.9),
		sample("2024-01-05T23:59:59Z", 0.6),
		sample("2024-01-05T00:00:00Z", 0.2),
		sample("2024-01-07T09:00:00Z", 0.8),
	})
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Date != "2024-01-05" || got[0].YesPrice != 0.6 {
		t.Fatalf("day 1 = %+v", got[0])
	}
	if got[1].Date != "2024-01-07" || got[1].YesPrice != 0.9 {
		t.Fatalf("day 2 = %+v", got[1])
	}
}

func TestBucketDailyEqualTimestampsLaterWins(t *testing.T) {
	got := BucketDaily("m", []domain.PriceSample{
		sample("2024-01-05T12:00:00Z", 0.3),
		sample("2024-01-05T12:00:00Z", 0.7),
	})
	if got[0].YesPrice != 0.7 {
		t.Fatalf("got %v", got[0].YesPrice)
	}
}

func TestBucketDailyUsesUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	got := BucketDaily("m", []domain.PriceSample{
		{Timestamp: time.Date(2024, 1, 5, 22, 0, 0, 0, est), Price: 0.5},
	})
	if got[0].Date != "2024-01-06" {
		t.Fatalf("date = %s", got[0].Date)
	}
}

func TestOutcomeProxy(t *testing.T) {
	pts := func(p float64) []domain.DailyPricePoint { return []domain.DailyPricePoint{{YesPrice: 0.1}, {YesPrice: p}} }
	if got := OutcomeProxy(pts(0.51)); got != domain.OutcomeYes {
		t.Fatalf("0.51: %q", got)
	}
	if got := OutcomeProxy(pts(0.5)); got != domain.OutcomeNo {
		t.Fatalf("0.5: %q", got)
	}
	if got := OutcomeProxy(nil); got != domain.OutcomeUnknown {
		t.Fatalf("empty: %q", got)
	}
}

func TestSeriesBuilderBuild(t *testing.T) {
	now := day("2024-03-01")
	src := &fakeHistory{res: pagination.Result[domain.PriceSample]{Items: []domain.PriceSample{
		sample("2024-01-05T08:00:00Z", 0.40),
		sample("2024-01-05T20:00:00Z", 0.55),
		sample("2024-01-06T20:00:00Z", 0.95),
	}}}
	b := NewSeriesBuilder(src, SeriesOptions{WindowDays: 30, Fidelity: 1440}, func() time.Time { return now })

	m := domain.Market{
		ID: "m1", YesTokenID: "yes",
		StartDate: tp(day("2024-01-01")), EndDate: tp(day("2024-06-01")),
		TotalVolume: 123.5, HasVolume: true,
	}
	res, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Points) != 2 || res.FinalOutcomeProxy != domain.OutcomeYes || res.TotalVolume != 123.5 || res.Truncated {
		t.Fatalf("res = %+v", res)
	}
	req := src.reqs[0]
	if req.TokenID != "yes" || !req.End.Equal(now) || req.Fidelity != 1440 {
		t.Fatalf("request = %+v", req)
	}
}

func TestSeriesBuilderErrors(t *testing.T) {
	now := day("2024-03-01")
	base := domain.Market{ID: "m", YesTokenID: "y", StartDate: tp(day("2024-01-01")), ClosedTime: tp(day("2024-02-01"))}

	failing := &fakeHistory{res: pagination.Result[domain.PriceSample]{Truncated: true, Err: &domain.PermanentError{StatusCode: 400}}}
	b := NewSeriesBuilder(failing, SeriesOptions{}, func() time.Time { return now })
	if _, err := b.Build(context.Background(), base); !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("got %v", err)
	}

	partial := &fakeHistory{res: pagination.Result[domain.PriceSample]{
		Items:     []domain.PriceSample{sample("2024-01-02T00:00:00Z", 0.2)},
		Truncated: true,
		Err:       context.Canceled,
	}}
	b = NewSeriesBuilder(partial, SeriesOptions{}, func() time.Time { return now })
	res, err := b.Build(context.Background(), base)
	if err != nil || !res.Truncated || len(res.Points) != 1 {
		t.Fatalf("partial: res=%+v err=%v", res, err)
	}

	noStart := base
	noStart.StartDate = nil
	if _, err := b.Build(context.Background(), noStart); !errors.Is(err, domain.ErrSchema) {
		t.Fatalf("no start: got %v", err)
	}

	inverted := base
	inverted.ClosedTime = tp(day("2023-12-01"))
	if _, err := b.Build(context.Background(), inverted); !errors.Is(err, domain.ErrSchema) {
		t.Fatalf("inverted: got %v", err)
	}
}

func TestSeriesBuilderJoinsNoPrices(t *testing.T) {
	now := day("2024-03-01")
	src := tokenHistory{
		"yes": {Items: []domain.PriceSample{
			sample("2024-01-05T20:00:00Z", 0.55),
			sample("2024-01-06T20:00:00Z", 0.95),
		}},
		"no": {Items: []domain.PriceSample{
			sample("2024-01-04T20:00:00Z", 0.7),
			sample("2024-01-05T08:00:00Z", 0.6),
			sample("2024-01-05T21:00:00Z", 0.45),
		}, Truncated: true, Err: context.Canceled},
	}
	b := NewSeriesBuilder(src, SeriesOptions{}, func() time.Time { return now })
	m := domain.Market{
		ID: "m", YesTokenID: "yes", NoTokenID: "no",
		StartDate: tp(day("2024-01-01")), ClosedTime: tp(day("2024-02-01")),
	}

	res, err := b.Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// The NO-only day is dropped and the YES day without a NO sample has none.
	want := []domain.DailyPricePoint{
		{MarketID: "m", Date: "2024-01-05", YesPrice: 0.55, NoPrice: 0.45, HasNoPrice: true},
		{MarketID: "m", Date: "2024-01-06", YesPrice: 0.95},
	}
	if len(res.Points) != len(want) {
		t.Fatalf("points = %+v", res.Points)
	}
	for i := range want {
		if res.Points[i] != want[i] {
			t.Fatalf("point %d = %+v want %+v", i, res.Points[i], want[i])
		}
	}
	if !res.Truncated {
		t.Fatal("a partial NO walk must mark the series truncated")
	}
}

func TestSeriesBuilderNoTokenFailure(t *testing.T) {
	now := day("2024-03-01")
	src := tokenHistory{
		"yes": {Items: []domain.PriceSample{sample("2024-01-05T20:00:00Z", 0.55)}},
		"no":  {Truncated: true, Err: &domain.PermanentError{StatusCode: 400}},
	}
	b := NewSeriesBuilder(src, SeriesOptions{}, func() time.Time { return now })
	m := domain.Market{
		ID: "m", YesTokenID: "yes", NoTokenID: "no",
		StartDate: tp(day("2024-01-01")), ClosedTime: tp(day("2024-02-01")),
	}
	if _, err := b.Build(context.Background(), m); !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("got %v", err)
	}
}
