// Package sqlite implements the aggregate cache in a local SQLite file using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS condition_ids (
	market_id    TEXT PRIMARY KEY,
	condition_id TEXT NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS volume_aggregates (
	condition_id TEXT PRIMARY KEY,
	data         TEXT NOT NULL,
	truncated    INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL
);
`

// Cache implements domain.AggregateCache.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the cache database at path and applies the schema.
// Use ":memory:" for a throwaway cache.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One connection: SQLite serialises writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set WAL mode: %w", err)
	}
	c := &Cache{db: db, now: time.Now}
	if err := c.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Migrate creates the cache tables. Safe to call repeatedly.
func (c *Cache) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) GetConditionID(ctx context.Context, marketID string) (string, error) {
	var cid string
	err := c.db.QueryRowContext(ctx,
		`SELECT condition_id FROM condition_ids WHERE market_id = ?`, marketID,
	).Scan(&cid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get condition %s: %w", marketID, err)
	}
	return cid, nil
}

func (c *Cache) SetConditionID(ctx context.Context, marketID, conditionID string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO condition_ids (market_id, condition_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET condition_id = excluded.condition_id, updated_at = excluded.updated_at`,
		marketID, conditionID, c.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set condition %s: %w", marketID, err)
	}
	return nil
}

func (c *Cache) GetAggregate(ctx context.Context, conditionID string) (domain.VolumeAggregate, error) {
	var data string
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM volume_aggregates WHERE condition_id = ?`, conditionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VolumeAggregate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.VolumeAggregate{}, fmt.Errorf("sqlite: get aggregate %s: %w", conditionID, err)
	}

	var agg domain.VolumeAggregate
	if err := json.Unmarshal([]byte(data), &agg); err != nil {
		return domain.VolumeAggregate{}, fmt.Errorf("sqlite: decode aggregate %s: %w", conditionID, err)
	}
	if agg.VolumeByDay == nil {
		agg.VolumeByDay = map[domain.Day]float64{}
	}
	if agg.CountByDay == nil {
		agg.CountByDay = map[domain.Day]int{}
	}
	return agg, nil
}

func (c *Cache) SetAggregate(ctx context.Context, conditionID string, agg domain.VolumeAggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("sqlite: encode aggregate %s: %w", conditionID, err)
	}
	truncated := 0
	if agg.Truncated {
		truncated = 1
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO volume_aggregates (condition_id, data, truncated, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
			data = excluded.data, truncated = excluded.truncated, updated_at = excluded.updated_at`,
		conditionID, string(data), truncated, c.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set aggregate %s: %w", conditionID, err)
	}
	return nil
}

var _ domain.AggregateCache = (*Cache)(nil)
