package domain

import "time"

// dayLayout is the calendar-day format used in every output table.
const dayLayout = "2006-01-02"

// Day is a UTC calendar date formatted as YYYY-MM-DD. Lexical order equals
// chronological order.
type Day string

// DayOf returns the UTC calendar day containing t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(dayLayout))
}

// ParseDay validates s as a YYYY-MM-DD day.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", err
	}
	return DayOf(t), nil
}

// Time returns midnight UTC of d.
func (d Day) Time() time.Time {
	t, _ := time.Parse(dayLayout, string(d))
	return t
}

func (d Day) String() string { return string(d) }

// PriceSample is one raw (timestamp, price) observation of a single token.
type PriceSample struct {
	Timestamp time.Time
	Price     float64
}

// DailyPricePoint is the representative price of a market for one UTC day.
// HasNoPrice is false when the NO token had no sample that day.
type DailyPricePoint struct {
	MarketID   string
	Date       Day
	YesPrice   float64
	NoPrice    float64
	HasNoPrice bool
}
