package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// txBeginner is the part of *pgxpool.Pool that replace needs.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TableSink implements domain.TableSink. Each Replace call runs in one
// transaction: every row of the table is deleted and the new rows inserted in
// a batch, so the table always matches the CSV written by the same run.
type TableSink struct {
	pool *pgxpool.Pool
	db   txBeginner
}

// NewTableSink creates a TableSink on c's pool.
func NewTableSink(c *Client) *TableSink {
	return &TableSink{pool: c.pool, db: c.pool}
}

func (s *TableSink) ReplaceDailySeries(ctx context.Context, rows []domain.DailyRow) error {
	const insert = `
		INSERT INTO daily_series (
			market_id, date, slug, title, yes_price, no_price, total_volume,
			final_outcome_proxy, uma_resolution_status, t_days, start_ts, end_date_ts,
			closed_ts, truncated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insert,
			r.Point.MarketID, r.Point.Date.Time(), r.Slug, r.Title, r.Point.YesPrice,
			nullFloat(r.Point.NoPrice, r.Point.HasNoPrice), nullFloat(r.TotalVolume, r.HasVolume),
			string(r.FinalOutcomeProxy), r.UMAResolutionStatus,
			nullFloat(r.TDays, r.HasTDays), nullTS(r.StartTS), nullTS(r.EndDateTS), nullTS(r.ClosedTS),
			r.Truncated,
		)
	}
	return s.replace(ctx, "daily_series", batch)
}

func (s *TableSink) ReplaceMarketTexts(ctx context.Context, texts []domain.MarketText) error {
	batch := &pgx.Batch{}
	for _, t := range texts {
		batch.Queue(`INSERT INTO market_texts (market_id, slug, title, description) VALUES ($1, $2, $3, $4)`,
			t.MarketID, t.Slug, t.Title, t.Description)
	}
	return s.replace(ctx, "market_texts", batch)
}

func (s *TableSink) ReplaceDailyVolumes(ctx context.Context, rows []domain.DailyVolume) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO daily_volumes (market_id, date, daily_volume, trade_count, truncated)
			VALUES ($1, $2, $3, $4, $5)`,
			r.MarketID, r.Date.Time(), r.Volume, r.TradeCount, r.Truncated)
	}
	return s.replace(ctx, "daily_volumes", batch)
}

func (s *TableSink) UpsertClassifications(ctx context.Context, rows []domain.Classification) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range rows {
		batch.Queue(`
			INSERT INTO market_metadata (market_id, slug, type, domain, date, status, error, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (market_id) DO UPDATE SET
				slug = EXCLUDED.slug, type = EXCLUDED.type, domain = EXCLUDED.domain,
				date = EXCLUDED.date, status = EXCLUDED.status, error = EXCLUDED.error,
				updated_at = NOW()`,
			c.MarketID, c.Slug, c.Type, c.Domain, c.Date, c.Status, c.Error)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert classification %s: %w", rows[i].MarketID, err)
		}
	}
	return nil
}

// replace empties table and runs batch in one transaction. An empty batch
// still clears the table.
func (s *TableSink) replace(ctx context.Context, table string, batch *pgx.Batch) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin replace %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("postgres: delete %s rows: %w", table, err)
	}

	n := batch.Len()
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("postgres: insert %s row %d: %w", table, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: insert %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit replace %s: %w", table, err)
	}
	return nil
}

func nullFloat(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// nullTS maps the "missing" zero timestamp to NULL.
func nullTS(ts int64) *int64 {
	if ts == 0 {
		return nil
	}
	return &ts
}

var _ domain.TableSink = (*TableSink)(nil)
