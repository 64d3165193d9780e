package domain

import "context"

// TableSink mirrors output tables into a database. Each Replace method swaps
// the whole table for rows in one transaction, matching the CSV it mirrors, so
// a rerun never leaves duplicates or stale rows behind.
type TableSink interface {
	ReplaceDailySeries(ctx context.Context, rows []DailyRow) error
	ReplaceMarketTexts(ctx context.Context, texts []MarketText) error
	ReplaceDailyVolumes(ctx context.Context, rows []DailyVolume) error
	UpsertClassifications(ctx context.Context, rows []Classification) error
}

// DailyRow is one daily.csv row: a price point plus the market fields repeated
// on every row.
type DailyRow struct {
	Point               DailyPricePoint
	Slug                string
	Title               string
	TotalVolume         float64
	HasVolume           bool
	FinalOutcomeProxy   Outcome
	UMAResolutionStatus string
	TDays               float64
	HasTDays            bool
	StartTS             int64
	EndDateTS           int64
	ClosedTS            int64
	Truncated           bool
}
