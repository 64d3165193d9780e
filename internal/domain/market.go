package domain

import (
	"encoding/json"
	"time"
)

// Outcome is a best-effort YES/NO label. The empty value means unknown.
type Outcome string

const (
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
	OutcomeUnknown Outcome = ""
)

// Market describes a closed binary market selected by discovery.
type Market struct {
	ID          string
	Slug        string
	Title       string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	ClosedTime  *time.Time
	ConditionID string // from the listing; empty when absent
	YesTokenID  string
	NoTokenID   string
	TotalVolume float64
	// HasVolume is false when the listing carried no usable volume field.
	HasVolume bool
	// UMAResolutionStatus is the listing's oracle status, passed through as-is.
	UMAResolutionStatus string

	// FinalOutcomeProxy is set once the daily series is built.
	FinalOutcomeProxy Outcome

	// Raw is the listing record as received, kept for markets.jsonl.
	Raw json.RawMessage
}

// EffectiveEnd returns ClosedTime when present, else EndDate, else nil.
func (m *Market) EffectiveEnd() *time.Time {
	if m.ClosedTime != nil {
		return m.ClosedTime
	}
	return m.EndDate
}

// TDays is the scheduled lifetime in days (EndDate - StartDate). ok is false when
// either bound is missing or the range is negative.
func (m *Market) TDays() (days float64, ok bool) {
	if m.StartDate == nil || m.EndDate == nil || m.EndDate.Before(*m.StartDate) {
		return 0, false
	}
	return m.EndDate.Sub(*m.StartDate).Seconds() / 86400.0, true
}

// MarketText is the static text of a market used by the classification job.
type MarketText struct {
	MarketID    string
	Slug        string
	Title       string
	Description string
}
