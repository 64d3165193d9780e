package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

func TestMergeReplacesByKey(t *testing.T) {
	existing := MetadataTable([]domain.Classification{
		{MarketID: "2", Type: "1", Domain: "sports", Status: "ok"},
		{MarketID: "1", Status: "error", Error: "timeout"},
	})
	fresh := MetadataTable([]domain.Classification{
		{MarketID: "1", Type: "2", Domain: "finance", Date: "05/01/2024", Status: "ok"},
		{MarketID: "3", Type: "U", Domain: "misc", Status: "ok"},
	})

	merged := Merge(existing, fresh)
	if len(merged.Rows) != 3 {
		t.Fatalf("rows = %v", merged.Rows)
	}
	ids := []string{merged.Rows[0][0], merged.Rows[1][0], merged.Rows[2][0]}
	if strings.Join(ids, ",") != "1,2,3" {
		t.Fatalf("order = %v", ids)
	}
	if merged.Rows[0][5] != "ok" || merged.Rows[0][3] != "finance" {
		t.Fatalf("market 1 not replaced: %v", merged.Rows[0])
	}

	// Merging the same rows again never duplicates.
	again := Merge(merged, fresh)
	if len(again.Rows) != 3 {
		t.Fatalf("second merge rows = %d", len(again.Rows))
	}
}

func TestMergeReplacesEveryRowOfKey(t *testing.T) {
	existing := VolumesTable([]domain.DailyVolume{
		{MarketID: "a", Date: "2024-01-01", Volume: 1},
		{MarketID: "a", Date: "2024-01-02", Volume: 2},
		{MarketID: "b", Date: "2024-01-01", Volume: 3},
	})
	existing.Key = []string{"market_id"}
	fresh := VolumesTable([]domain.DailyVolume{{MarketID: "a", Date: "2024-01-03", Volume: 9}})
	fresh.Key = []string{"market_id"}

	merged := Merge(existing, fresh)
	if len(merged.Rows) != 2 {
		t.Fatalf("rows = %v", merged.Rows)
	}
	if merged.Rows[0][1] != "2024-01-03" || merged.Rows[1][0] != "b" {
		t.Fatalf("rows = %v", merged.Rows)
	}
}

func TestMergeProjectsOldHeader(t *testing.T) {
	existing := Table{
		Header: []string{"market_id", "type", "status"},
		Key:    MetadataKey,
		Rows:   [][]string{{"9", "1", "ok"}},
	}
	merged := Merge(existing, MetadataTable(nil))
	if len(merged.Rows) != 1 {
		t.Fatalf("rows = %v", merged.Rows)
	}
	want := []string{"9", "", "1", "", "", "ok", ""}
	if strings.Join(merged.Rows[0], "|") != strings.Join(want, "|") {
		t.Fatalf("row = %q want %q", merged.Rows[0], want)
	}
}

func TestWriteTableIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	rows := []domain.DailyRow{
		{
			Point:               domain.DailyPricePoint{MarketID: "2", Date: "2024-01-06", YesPrice: 0.55, NoPrice: 0.45, HasNoPrice: true},
			Title:               "Second, with comma",
			HasVolume:           true,
			TotalVolume:         12.5,
			FinalOutcomeProxy:   domain.OutcomeYes,
			UMAResolutionStatus: "resolved",
		},
		{Point: domain.DailyPricePoint{MarketID: "1", Date: "2024-01-05", YesPrice: 0.1}, Title: `Say "hi"`, StartTS: 1704067200},
		{Point: domain.DailyPricePoint{MarketID: "1", Date: "2024-01-04", YesPrice: 0.3}, Truncated: true},
	}

	p1 := filepath.Join(dir, "a.csv")
	p2 := filepath.Join(dir, "b.csv")
	if err := WriteTable(p1, DailyTable(rows)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Same rows in a different order.
	reversed := []domain.DailyRow{rows[2], rows[0], rows[1]}
	if err := WriteTable(p2, DailyTable(reversed)); err != nil {
		t.Fatalf("write: %v", err)
	}

	a, _ := os.ReadFile(p1)
	b, _ := os.ReadFile(p2)
	if !bytes.Equal(a, b) {
		t.Fatalf("outputs differ:\n%s\n---\n%s", a, b)
	}

	lines := strings.Split(strings.TrimSpace(string(a)), "\n")
	if lines[0] != strings.Join(DailyHeader, ",") {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "1,,,2024-01-04,0.3,,,,,,,,,1" {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if lines[2] != `1,,"Say ""hi""",2024-01-05,0.1,,,,,,1704067200,,,0` {
		t.Fatalf("row 2 = %q", lines[2])
	}
	if lines[3] != `2,,"Second, with comma",2024-01-06,0.55,0.45,12.5,YES,resolved,,,,,0` {
		t.Fatalf("row 3 = %q", lines[3])
	}
}

func TestReadFileRoundTripAndMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, TextsFile)

	if _, err := ReadFile(path, TextsKey); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: got %v", err)
	}
	empty, err := ReadFileOrEmpty(path, TextsHeader, TextsKey)
	if err != nil || len(empty.Rows) != 0 || len(empty.Header) != len(TextsHeader) {
		t.Fatalf("empty = %+v, %v", empty, err)
	}

	in := []domain.MarketText{{MarketID: "1", Slug: "s", Title: "T, t", Description: "multi\nline"}}
	if err := WriteTable(path, TextsTable(in)); err != nil {
		t.Fatalf("write: %v", err)
	}
	tbl, err := ReadFile(path, TextsKey)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := ParseTexts(tbl)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 1 || got[0] != in[0] {
		t.Fatalf("got %+v want %+v", got, in)
	}
}

func TestMarketDates(t *testing.T) {
	tbl := DailyTable([]domain.DailyRow{
		{Point: domain.DailyPricePoint{MarketID: "1", Date: "2024-01-05"}},
		{Point: domain.DailyPricePoint{MarketID: "1", Date: "2024-01-03"}},
		{Point: domain.DailyPricePoint{MarketID: "1", Date: "2024-01-05"}},
		{Point: domain.DailyPricePoint{MarketID: "2", Date: "2024-02-01"}},
	})
	got, err := MarketDates(tbl)
	if err != nil {
		t.Fatalf("MarketDates: %v", err)
	}
	if len(got["1"]) != 2 || got["1"][0] != "2024-01-03" || got["1"][1] != "2024-01-05" {
		t.Fatalf("market 1 dates = %v", got["1"])
	}
	if len(got["2"]) != 1 {
		t.Fatalf("market 2 dates = %v", got["2"])
	}
}

func TestWriteFileAtomicLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.csv")
	if err := WriteFileAtomic(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("entries = %v", entries)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Fatalf("data = %q", data)
	}
}

func TestEncodeJSONL(t *testing.T) {
	got, err := EncodeJSONL([]json.RawMessage{
		json.RawMessage("{\n  \"id\": \"1\"\n}"),
		json.RawMessage(`{"id":"2"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "{\"id\":\"1\"}\n{\"id\":\"2\"}\n" {
		t.Fatalf("got %q", got)
	}
}
