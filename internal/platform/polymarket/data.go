package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// DataClient is the client for the Polymarket Data API.
type DataClient struct {
	baseURL string
	getter  JSONGetter
}

// NewDataClient creates a new Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL string, getter JSONGetter) *DataClient {
	return &DataClient{baseURL: baseURL, getter: getter}
}

// Trades returns one page of trades for a condition. Records are returned as
// received so the page length matches the server's count; callers convert
// them with ToDomainTrade.
//
// When the server refuses the offset as beyond its history limit, the error
// wraps domain.ErrOffsetCapExceeded.
func (d *DataClient) Trades(ctx context.Context, conditionID string, offset, limit int) ([]APITrade, error) {
	params := url.Values{}
	params.Set("market", conditionID)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := d.getter.GetJSON(ctx, joinURL(d.baseURL, "/trades"), params)
	if err != nil {
		if isOffsetExceeded(err) {
			return nil, fmt.Errorf("polymarket/data: trades %s offset=%d: %w", conditionID, offset, domain.ErrOffsetCapExceeded)
		}
		return nil, fmt.Errorf("polymarket/data: trades %s offset=%d: %w", conditionID, offset, err)
	}
	if string(body) == "null" {
		return nil, nil
	}

	var trades []APITrade
	if err := json.Unmarshal(body, &trades); err != nil {
		// Non-array bodies are treated as an empty page.
		var obj map[string]json.RawMessage
		if json.Unmarshal(body, &obj) == nil {
			return nil, nil
		}
		return nil, &domain.SchemaError{What: "polymarket/data: decode trades", Err: err}
	}
	return trades, nil
}

func isOffsetExceeded(err error) bool {
	var pe *domain.PermanentError
	if !errors.As(err, &pe) {
		return false
	}
	body := strings.ToLower(pe.Body)
	return strings.Contains(body, "offset") && strings.Contains(body, "exceeded")
}
