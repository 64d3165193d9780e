package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/pagination"
)

const secondsPerDay = 86400

// ClobClient is the read-only client for the Polymarket CLOB API.
type ClobClient struct {
	baseURL string
	getter  JSONGetter
}

// NewClobClient creates a new CLOB client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, getter JSONGetter) *ClobClient {
	return &ClobClient{baseURL: baseURL, getter: getter}
}

// PriceHistoryRequest describes one token's history walk.
type PriceHistoryRequest struct {
	TokenID    string
	Start, End time.Time
	WindowDays int // width of each request window
	Fidelity   int // sample resolution in minutes
	MaxWindows int // 0 means unlimited
}

// PriceHistory walks [Start, End] in consecutive windows. When the API rejects
// a window as too long, the window is halved and the same start retried; if
// even a one-day window is rejected, that day is skipped.
//
// Samples are returned in the order the API produced them.
func (c *ClobClient) PriceHistory(ctx context.Context, req PriceHistoryRequest) pagination.Result[domain.PriceSample] {
	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	endTS := req.End.Unix()

	walk := func(ctx context.Context, cursor int64) ([]domain.PriceSample, int64, bool, error) {
		if cursor >= endTS {
			return nil, cursor, true, nil
		}
		for days := windowDays; days >= 1; days /= 2 {
			windowEnd := min(endTS, cursor+int64(days)*secondsPerDay)
			samples, err := c.priceWindow(ctx, req.TokenID, cursor, windowEnd, req.Fidelity)
			if err == nil {
				next := windowEnd + 1
				return samples, next, next >= endTS, nil
			}
			if !isIntervalTooLong(err) {
				return nil, 0, false, err
			}
		}
		next := cursor + secondsPerDay
		return nil, next, next >= endTS, nil
	}

	return pagination.Cursor(ctx, req.Start.Unix(), walk, req.MaxWindows)
}

func (c *ClobClient) priceWindow(ctx context.Context, tokenID string, startTS, endTS int64, fidelity int) ([]domain.PriceSample, error) {
	params := url.Values{}
	params.Set("market", tokenID)
	params.Set("startTs", strconv.FormatInt(startTS, 10))
	params.Set("endTs", strconv.FormatInt(endTS, 10))
	if fidelity > 0 {
		params.Set("fidelity", strconv.Itoa(fidelity))
	}

	body, err := c.getter.GetJSON(ctx, joinURL(c.baseURL, "/prices-history"), params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: prices-history %s: %w", tokenID, err)
	}
	if string(body) == "null" {
		return nil, nil
	}

	var hist APIPriceHistory
	if err := json.Unmarshal(body, &hist); err != nil {
		return nil, &domain.SchemaError{What: "polymarket/clob: decode prices-history", Err: err}
	}

	samples := make([]domain.PriceSample, 0, len(hist.History))
	for _, pt := range hist.History {
		ts, ok := ParseTimestamp(string(pt.T))
		if !ok {
			continue
		}
		p, ok := pt.P.Float()
		if !ok || math.IsNaN(p) || math.IsInf(p, 0) {
			continue
		}
		samples = append(samples, domain.PriceSample{Timestamp: ts, Price: p})
	}
	return samples, nil
}

func isIntervalTooLong(err error) bool {
	var pe *domain.PermanentError
	return errors.As(err, &pe) && strings.Contains(strings.ToLower(pe.Body), "interval is too long")
}
