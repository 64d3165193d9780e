package output

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// File names inside the output directory.
const (
	DailyFile    = "daily.csv"
	TextsFile    = "market_texts.csv"
	VolumesFile  = "daily_volumes.csv"
	MetadataFile = "market_metadata.csv"
	FailuresFile = "failures.csv"
	MarketsJSONL = "markets.jsonl"
)

var (
	DailyHeader = []string{
		"market_id", "slug", "title", "date", "yes_price", "no_price", "total_volume",
		"final_outcome_proxy", "uma_resolution_status", "T_days", "start_ts", "end_date_ts",
		"closed_ts", "truncated",
	}
	DailyKey = []string{"market_id", "date"}

	TextsHeader = []string{"market_id", "slug", "title", "description"}
	TextsKey    = []string{"market_id"}

	VolumesHeader = []string{"market_id", "date", "daily_volume", "trade_count", "truncated"}
	VolumesKey    = []string{"market_id", "date"}

	MetadataHeader = []string{"market_id", "slug", "type", "domain", "date", "status", "error"}
	MetadataKey    = []string{"market_id"}

	FailuresHeader = []string{"market_id", "stage", "error"}
	FailuresKey    = []string{"market_id", "stage"}
)

// FormatFloat is the single float format used in every table: shortest
// representation that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatTS(ts int64) string {
	if ts == 0 {
		return ""
	}
	return strconv.FormatInt(ts, 10)
}

// DailyTable builds daily.csv.
func DailyTable(rows []domain.DailyRow) Table {
	t := NewTable(DailyHeader, DailyKey)
	for _, r := range rows {
		vol, tdays, no := "", "", ""
		if r.Point.HasNoPrice {
			no = FormatFloat(r.Point.NoPrice)
		}
		if r.HasVolume {
			vol = FormatFloat(r.TotalVolume)
		}
		if r.HasTDays {
			tdays = FormatFloat(r.TDays)
		}
		t.Rows = append(t.Rows, []string{
			r.Point.MarketID,
			r.Slug,
			r.Title,
			r.Point.Date.String(),
			FormatFloat(r.Point.YesPrice),
			no,
			vol,
			string(r.FinalOutcomeProxy),
			r.UMAResolutionStatus,
			tdays,
			formatTS(r.StartTS),
			formatTS(r.EndDateTS),
			formatTS(r.ClosedTS),
			formatFlag(r.Truncated),
		})
	}
	return t
}

// MarketDates returns, per market id, the sorted distinct dates present in a
// daily table.
func MarketDates(t Table) (map[string][]domain.Day, error) {
	mc, dc := t.Column("market_id"), t.Column("date")
	if mc < 0 || dc < 0 {
		return nil, fmt.Errorf("output: daily table lacks market_id or date column")
	}
	seen := make(map[string]map[domain.Day]struct{})
	for _, row := range t.Rows {
		mid, date := row[mc], row[dc]
		if mid == "" || date == "" {
			continue
		}
		d, err := domain.ParseDay(date)
		if err != nil {
			return nil, fmt.Errorf("output: market %s: bad date %q: %w", mid, date, err)
		}
		if seen[mid] == nil {
			seen[mid] = make(map[domain.Day]struct{})
		}
		seen[mid][d] = struct{}{}
	}

	out := make(map[string][]domain.Day, len(seen))
	for mid, days := range seen {
		list := make([]domain.Day, 0, len(days))
		for d := range days {
			list = append(list, d)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		out[mid] = list
	}
	return out, nil
}

// TextsTable builds market_texts.csv.
func TextsTable(texts []domain.MarketText) Table {
	t := NewTable(TextsHeader, TextsKey)
	for _, m := range texts {
		t.Rows = append(t.Rows, []string{m.MarketID, m.Slug, m.Title, m.Description})
	}
	return t
}

// ParseTexts reads market_texts.csv rows.
func ParseTexts(t Table) ([]domain.MarketText, error) {
	cols, err := columns(t, TextsHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MarketText, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, domain.MarketText{
			MarketID:    row[cols[0]],
			Slug:        row[cols[1]],
			Title:       row[cols[2]],
			Description: row[cols[3]],
		})
	}
	return out, nil
}

// VolumesTable builds daily_volumes.csv.
func VolumesTable(rows []domain.DailyVolume) Table {
	t := NewTable(VolumesHeader, VolumesKey)
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.MarketID,
			r.Date.String(),
			FormatFloat(r.Volume),
			strconv.Itoa(r.TradeCount),
			formatFlag(r.Truncated),
		})
	}
	return t
}

// MetadataTable builds market_metadata.csv rows.
func MetadataTable(rows []domain.Classification) Table {
	t := NewTable(MetadataHeader, MetadataKey)
	for _, c := range rows {
		t.Rows = append(t.Rows, []string{c.MarketID, c.Slug, c.Type, c.Domain, c.Date, c.Status, c.Error})
	}
	return t
}

// ParseMetadata reads market_metadata.csv rows.
func ParseMetadata(t Table) ([]domain.Classification, error) {
	cols, err := columns(t, MetadataHeader)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Classification, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, domain.Classification{
			MarketID: row[cols[0]],
			Slug:     row[cols[1]],
			Type:     row[cols[2]],
			Domain:   row[cols[3]],
			Date:     row[cols[4]],
			Status:   row[cols[5]],
			Error:    row[cols[6]],
		})
	}
	return out, nil
}

// Failure is one failures.csv row.
type Failure struct {
	MarketID string
	Stage    string
	Error    string
}

// FailuresTable builds failures.csv.
func FailuresTable(rows []Failure) Table {
	t := NewTable(FailuresHeader, FailuresKey)
	for _, f := range rows {
		t.Rows = append(t.Rows, []string{f.MarketID, f.Stage, f.Error})
	}
	return t
}

func columns(t Table, names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		c := t.Column(n)
		if c < 0 {
			return nil, fmt.Errorf("output: missing column %q", n)
		}
		idx[i] = c
	}
	return idx, nil
}
