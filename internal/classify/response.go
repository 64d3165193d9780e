package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ddmmyyyy is the layout of the classification date.
const ddmmyyyy = "02/01/2006"

// Error codes written to the error column of market_metadata.csv.
const (
	CodeInvalidResponse = "invalid_response"
	CodeRequestFailed   = "request_failed"
)

// ErrInvalidResponse is returned by ParseResponse for any answer that does
// not satisfy the output contract.
var ErrInvalidResponse = errors.New("classify: invalid response")

var (
	validTypes   = map[string]bool{"1": true, "2": true, "U": true}
	validDomains = map[string]bool{"finance": true, "sports": true, "politics": true, "misc": true}
)

// Answer is a validated model answer.
type Answer struct {
	Type   string
	Domain string
	Date   string
}

// ParseResponse decodes and validates a model answer. Type must be 1, 2 or
// U, domain one of the four known domains, and date either empty or a
// DD/MM/YYYY day. Type U goes with an empty date and every other type with a
// non-empty one.
func ParseResponse(text string) (Answer, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	a := Answer{
		Type:   field(raw, "type"),
		Domain: field(raw, "domain"),
		Date:   field(raw, "date"),
	}
	switch {
	case !validTypes[a.Type]:
		return Answer{}, fmt.Errorf("%w: type %q", ErrInvalidResponse, a.Type)
	case !validDomains[a.Domain]:
		return Answer{}, fmt.Errorf("%w: domain %q", ErrInvalidResponse, a.Domain)
	case a.Date != "" && !isDDMMYYYY(a.Date):
		return Answer{}, fmt.Errorf("%w: date %q", ErrInvalidResponse, a.Date)
	case a.Date == "" && a.Type != "U":
		return Answer{}, fmt.Errorf("%w: type %s without date", ErrInvalidResponse, a.Type)
	case a.Date != "" && a.Type == "U":
		return Answer{}, fmt.Errorf("%w: type U with date %s", ErrInvalidResponse, a.Date)
	}
	return a, nil
}

// field reads key as trimmed text. Numbers are accepted since models
// sometimes answer "type": 1.
func field(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func isDDMMYYYY(s string) bool {
	_, err := time.Parse(ddmmyyyy, s)
	return err == nil
}
