package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") since Gamma
// is not consistent about which it sends.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexString accepts a JSON string or number and keeps its text form.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Float parses the value. ok is false for empty or non-numeric text.
func (f flexString) Float() (v float64, ok bool) {
	if f == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// stringList decodes either a JSON array or a string holding a JSON-encoded
// array, e.g. "[\"Yes\",\"No\"]". Anything unparseable decodes to an empty
// list so one malformed record cannot fail a whole listing page.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	*l = nil
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		encoded = strings.TrimSpace(encoded)
		if encoded == "" {
			return nil
		}
		data = []byte(encoded)
	}
	var items []flexString
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it)
	}
	*l = out
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is the subset of a Gamma market record this project consumes.
type APIMarket struct {
	ID            flexString      `json:"id"`
	Question      string          `json:"question"`
	Title         string          `json:"title"`
	Slug          string          `json:"slug"`
	Description   string          `json:"description"`
	ConditionID   string          `json:"conditionId"`
	UMAStatus     string          `json:"umaResolutionStatus"`
	Closed        flexBool        `json:"closed"`
	Outcomes      stringList      `json:"outcomes"`
	OutcomePrices stringList      `json:"outcomePrices"`
	ClobTokenIDs  stringList      `json:"clobTokenIds"`
	VolumeNum     flexString      `json:"volumeNum"`
	Volume        flexString      `json:"volume"`
	StartDate     json.RawMessage `json:"startDate"`
	CreatedAt     json.RawMessage `json:"createdAt"`
	EndDate       json.RawMessage `json:"endDate"`
	ClosedTime    json.RawMessage `json:"closedTime"`
}

// IsBinary reports whether the market has exactly the outcomes Yes and No, in
// either order, and one CLOB token per outcome.
func (m *APIMarket) IsBinary() bool {
	if len(m.Outcomes) != 2 || len(m.ClobTokenIDs) != 2 {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(m.Outcomes[0]))
	b := strings.ToLower(strings.TrimSpace(m.Outcomes[1]))
	return (a == "yes" && b == "no") || (a == "no" && b == "yes")
}

// ToDomainMarket converts the record. raw is stored on the result as-is.
// Token ids are only assigned for binary markets. A missing or malformed
// condition id leaves ConditionID empty.
func (m *APIMarket) ToDomainMarket(raw json.RawMessage) domain.Market {
	dm := domain.Market{
		ID:          string(m.ID),
		Slug:        strings.TrimSpace(m.Slug),
		Title:       singleLine(m.Question),
		Description: singleLine(m.Description),
		Raw:         raw,

		UMAResolutionStatus: strings.TrimSpace(m.UMAStatus),
	}
	if dm.Title == "" {
		dm.Title = singleLine(m.Title)
	}
	if cid, err := NormalizeConditionID(strings.TrimSpace(m.ConditionID)); err == nil {
		dm.ConditionID = cid
	}

	if v, ok := m.VolumeNum.Float(); ok {
		dm.TotalVolume, dm.HasVolume = v, true
	} else if v, ok := m.Volume.Float(); ok {
		dm.TotalVolume, dm.HasVolume = v, true
	}

	dm.StartDate = parseTimeValue(m.StartDate)
	if dm.StartDate == nil {
		dm.StartDate = parseTimeValue(m.CreatedAt)
	}
	dm.EndDate = parseTimeValue(m.EndDate)
	dm.ClosedTime = parseTimeValue(m.ClosedTime)

	if m.IsBinary() {
		if strings.EqualFold(strings.TrimSpace(m.Outcomes[0]), "yes") {
			dm.YesTokenID, dm.NoTokenID = m.ClobTokenIDs[0], m.ClobTokenIDs[1]
		} else {
			dm.YesTokenID, dm.NoTokenID = m.ClobTokenIDs[1], m.ClobTokenIDs[0]
		}
	}
	return dm
}

// ListingConditionIDs maps market id to normalised condition id for the raw
// Gamma records in records. Records that do not decode or carry no valid
// condition id are left out.
func ListingConditionIDs(records []json.RawMessage) map[string]string {
	out := make(map[string]string, len(records))
	for _, raw := range records {
		var am APIMarket
		if err := json.Unmarshal(raw, &am); err != nil {
			continue
		}
		if m := am.ToDomainMarket(nil); m.ID != "" && m.ConditionID != "" {
			out[m.ID] = m.ConditionID
		}
	}
	return out
}

func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIPriceHistory is the /prices-history response.
type APIPriceHistory struct {
	History []APIPricePoint `json:"history"`
}

// APIPricePoint is one (t, p) sample; t is Unix seconds.
type APIPricePoint struct {
	T flexString `json:"t"`
	P flexString `json:"p"`
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APITrade is one record of the Data API /trades endpoint.
type APITrade struct {
	ConditionID string     `json:"conditionId"`
	Timestamp   flexString `json:"timestamp"`
	Size        flexString `json:"size"`
	Price       flexString `json:"price"`
}

// ToDomainTrade converts the record. ok is false when the timestamp, size or
// price is missing or unparseable.
func (t *APITrade) ToDomainTrade() (domain.Trade, bool) {
	ts, ok := ParseTimestamp(string(t.Timestamp))
	if !ok {
		return domain.Trade{}, false
	}
	size, ok := t.Size.Float()
	if !ok {
		return domain.Trade{}, false
	}
	price, ok := t.Price.Float()
	if !ok {
		return domain.Trade{}, false
	}
	return domain.Trade{
		ConditionID: t.ConditionID,
		Timestamp:   ts,
		Size:        size,
		Price:       price,
	}, true
}

// --------------------------------------------------------------------------
// Timestamps
// --------------------------------------------------------------------------

// msThreshold separates Unix seconds from Unix milliseconds: any value above it
// is taken to be milliseconds.
const msThreshold = 10_000_000_000

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp shapes Polymarket APIs emit: Unix
// seconds or milliseconds (as digits, possibly fractional), RFC 3339, a space
// instead of the T separator, a bare "+00" offset, or a date alone. Values
// without an offset are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && isNumeric(s) {
		return unixFlexible(n), true
	}
	if strings.Contains(s, " ") && !strings.Contains(s, "T") {
		s = strings.Replace(s, " ", "T", 1)
	}
	if strings.HasSuffix(s, "+00") {
		s += ":00"
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

func unixFlexible(n float64) time.Time {
	if n > msThreshold {
		n /= 1000
	}
	return time.Unix(int64(n), 0).UTC()
}

// parseTimeValue accepts a raw JSON string or number. It returns nil when the
// field is absent, null, or unparseable.
func parseTimeValue(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var fs flexString
	if err := json.Unmarshal(raw, &fs); err != nil {
		return nil
	}
	t, ok := ParseTimestamp(string(fs))
	if !ok {
		return nil
	}
	return &t
}
