package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// GammaClient is the client for the Polymarket Gamma API, which provides
// market discovery and metadata.
type GammaClient struct {
	baseURL string
	getter  JSONGetter
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, getter JSONGetter) *GammaClient {
	return &GammaClient{baseURL: baseURL, getter: getter}
}

// ListQuery holds the optional listing parameters.
type ListQuery struct {
	Order     string // e.g. "endDate"; empty omits order and ascending
	Ascending bool
	// EndDateMin, when set, asks the server to pre-filter by end date.
	EndDateMin *time.Time
}

// Listing is one record of the closed-markets listing.
type Listing struct {
	Market domain.Market
	Binary bool
}

// ListClosedMarkets returns one page of closed markets.
func (g *GammaClient) ListClosedMarkets(ctx context.Context, q ListQuery, offset, limit int) ([]Listing, error) {
	params := url.Values{}
	params.Set("closed", "true")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if q.Order != "" {
		params.Set("order", q.Order)
		params.Set("ascending", strconv.FormatBool(q.Ascending))
	}
	if q.EndDateMin != nil {
		params.Set("end_date_min", q.EndDateMin.UTC().Format(time.RFC3339))
	}

	body, err := g.getter.GetJSON(ctx, joinURL(g.baseURL, "/markets"), params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets offset=%d: %w", offset, err)
	}
	if string(body) == "null" {
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, &domain.SchemaError{What: "polymarket/gamma: markets page is not an array", Err: err}
	}

	out := make([]Listing, 0, len(raws))
	for _, raw := range raws {
		var am APIMarket
		if err := json.Unmarshal(raw, &am); err != nil {
			// A record we cannot read is not a usable binary market.
			out = append(out, Listing{Market: domain.Market{Raw: raw}})
			continue
		}
		out = append(out, Listing{Market: am.ToDomainMarket(raw), Binary: am.IsBinary()})
	}
	return out, nil
}

// ConditionID looks up a market by id and returns its normalised condition id.
func (g *GammaClient) ConditionID(ctx context.Context, marketID string) (string, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(marketID))

	body, err := g.getter.GetJSON(ctx, joinURL(g.baseURL, path), nil)
	if err != nil {
		return "", fmt.Errorf("polymarket/gamma: get market %s: %w", marketID, err)
	}
	if string(body) == "null" {
		return "", fmt.Errorf("polymarket/gamma: market %s: %w", marketID, domain.ErrNotFound)
	}

	var am APIMarket
	if err := json.Unmarshal(body, &am); err != nil {
		return "", &domain.SchemaError{What: "polymarket/gamma: decode market " + marketID, Err: err}
	}
	if am.ConditionID == "" {
		return "", fmt.Errorf("polymarket/gamma: market %s has no conditionId: %w", marketID, domain.ErrNotFound)
	}
	return NormalizeConditionID(am.ConditionID)
}

// NormalizeConditionID validates a 32-byte 0x-prefixed hex condition id and
// returns it in lowercase canonical form.
func NormalizeConditionID(s string) (string, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return "", &domain.SchemaError{What: fmt.Sprintf("condition id %q", s), Err: err}
	}
	if len(b) != common.HashLength {
		return "", &domain.SchemaError{What: fmt.Sprintf("condition id %q is %d bytes, want %d", s, len(b), common.HashLength)}
	}
	return common.BytesToHash(b).Hex(), nil
}
