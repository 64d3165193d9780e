// Package polymarket holds the read-only REST clients for the Gamma listing
// API, the CLOB price-history API and the Data API trades endpoint.
package polymarket

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// JSONGetter performs one logical GET, retries included. fetch.Fetcher is the
// production implementation.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error)
}

func joinURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
