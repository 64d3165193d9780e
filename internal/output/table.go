// Package output reads and writes the CSV tables produced by the pipeline.
// Every table is written sorted by its key columns so that a rerun over
// unchanged data produces identical bytes.
package output

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Table is an in-memory CSV table. Key names the columns whose values
// identify the entity a row belongs to; more than one row may share a key.
type Table struct {
	Header []string
	Key    []string
	Rows   [][]string
}

// NewTable returns an empty table with the given header and key columns.
func NewTable(header, key []string) Table {
	return Table{Header: header, Key: key}
}

// Column returns the index of name in the header, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

func (t Table) keyIndexes() []int {
	idx := make([]int, 0, len(t.Key))
	for _, k := range t.Key {
		if i := t.Column(k); i >= 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// keyOf joins the key columns of row with a separator that cannot appear in
// a CSV field value written by this package.
func keyOf(row []string, idx []int) string {
	parts := make([]string, len(idx))
	for i, c := range idx {
		if c < len(row) {
			parts[i] = row[c]
		}
	}
	return strings.Join(parts, "\x00")
}

// Sort orders rows by the key columns. Rows with equal keys keep their
// relative order.
func (t Table) Sort() {
	idx := t.keyIndexes()
	sort.SliceStable(t.Rows, func(a, b int) bool {
		for _, c := range idx {
			if t.Rows[a][c] != t.Rows[b][c] {
				return t.Rows[a][c] < t.Rows[b][c]
			}
		}
		return false
	})
}

// Project rewrites the rows of t into header order, matching columns by name.
// Columns t lacks are left empty.
func (t Table) Project(header []string) Table {
	out := Table{Header: header, Key: t.Key, Rows: make([][]string, 0, len(t.Rows))}
	src := make([]int, len(header))
	for i, h := range header {
		src[i] = t.Column(h)
	}
	for _, row := range t.Rows {
		nr := make([]string, len(header))
		for i, c := range src {
			if c >= 0 && c < len(row) {
				nr[i] = row[c]
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Merge returns existing with every row whose key occurs in fresh replaced by
// fresh's rows for that key. Rows of keys absent from fresh are kept. The
// result uses fresh's header and key and is sorted.
func Merge(existing, fresh Table) Table {
	if len(existing.Rows) > 0 && !equalStrings(existing.Header, fresh.Header) {
		existing = existing.Project(fresh.Header)
	}

	idx := fresh.keyIndexes()
	replaced := make(map[string]struct{}, len(fresh.Rows))
	for _, row := range fresh.Rows {
		replaced[keyOf(row, idx)] = struct{}{}
	}

	out := Table{Header: fresh.Header, Key: fresh.Key}
	out.Rows = make([][]string, 0, len(existing.Rows)+len(fresh.Rows))
	for _, row := range existing.Rows {
		if _, ok := replaced[keyOf(row, idx)]; ok {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	out.Rows = append(out.Rows, fresh.Rows...)
	out.Sort()
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Encode returns the CSV bytes of t, header first.
func (t Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, fmt.Errorf("output: writing CSV header: %w", err)
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("output: writing CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("output: flushing CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses CSV bytes whose first record is the header.
func Decode(r io.Reader, key []string) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("output: reading CSV: %w", err)
	}
	if len(records) == 0 {
		return Table{Key: key}, nil
	}
	t := Table{Header: records[0], Key: key, Rows: records[1:]}
	for i, row := range t.Rows {
		if len(row) < len(t.Header) {
			padded := make([]string, len(t.Header))
			copy(padded, row)
			t.Rows[i] = padded
		}
	}
	return t, nil
}

// ReadFile reads a table from path. A missing file yields an empty table and
// an error wrapping os.ErrNotExist.
func ReadFile(path string, key []string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{Key: key}, fmt.Errorf("output: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f, key)
}

// ReadFileOrEmpty is ReadFile with a missing file treated as empty.
func ReadFileOrEmpty(path string, header, key []string) (Table, error) {
	t, err := ReadFile(path, key)
	if errors.Is(err, os.ErrNotExist) {
		return NewTable(header, key), nil
	}
	return t, err
}

// WriteTable sorts t and writes it to path atomically.
func WriteTable(path string, t Table) error {
	t.Sort()
	data, err := t.Encode()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temporary file in path's directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("output: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("output: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("output: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("output: rename %s: %w", path, err)
	}
	return nil
}
