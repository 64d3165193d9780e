package domain

import "time"

// Trade is a single fill from the trades endpoint. It is never persisted; it
// only feeds DailyVolume aggregation.
type Trade struct {
	ConditionID string
	Timestamp   time.Time
	Size        float64
	Price       float64
}

// DailyVolume is the notional traded on one UTC day for one market.
//
// When Truncated is set the upstream trade stream was cut short, so Volume and
// TradeCount are lower bounds for the market's earliest days, not exact values.
type DailyVolume struct {
	MarketID   string
	Date       Day
	Volume     float64
	TradeCount int
	Truncated  bool
}

// VolumeAggregate is the per-condition result cached between runs.
type VolumeAggregate struct {
	VolumeByDay map[Day]float64 `json:"vol_by_date"`
	CountByDay  map[Day]int     `json:"cnt_by_date"`
	Truncated   bool            `json:"truncated"`
}
