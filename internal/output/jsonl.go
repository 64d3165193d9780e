package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// EncodeJSONL compacts each record onto one line.
func EncodeJSONL(records []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range records {
		if err := json.Compact(&buf, rec); err != nil {
			return nil, fmt.Errorf("output: record %d: %w", i, err)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// WriteJSONL writes records to path atomically, one per line.
func WriteJSONL(path string, records []json.RawMessage) error {
	data, err := EncodeJSONL(records)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// ReadJSONL reads one record per non-blank line of path. A missing file
// yields no records.
func ReadJSONL(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("output: read %s: %w", path, err)
	}
	var out []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		out = append(out, json.RawMessage(bytes.Clone(line)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("output: read %s: %w", path, err)
	}
	return out, nil
}
