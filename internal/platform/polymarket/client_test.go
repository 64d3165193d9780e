package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

type call struct {
	url    string
	params url.Values
}

// fakeGetter answers every request with respond and records it.
type fakeGetter struct {
	calls   []call
	respond func(rawURL string, params url.Values) (json.RawMessage, error)
}

func (f *fakeGetter) GetJSON(_ context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	f.calls = append(f.calls, call{url: rawURL, params: params})
	return f.respond(rawURL, params)
}

func TestGammaListClosedMarketsParams(t *testing.T) {
	g := &fakeGetter{respond: func(string, url.Values) (json.RawMessage, error) {
		return json.RawMessage(`[{"id":"1","outcomes":["Yes","No"],"clobTokenIds":["a","b"]},{"id":"2","outcomes":["A","B","C"]}]`), nil
	}}
	client := NewGammaClient("https://gamma.example/", g)

	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := client.ListClosedMarkets(context.Background(), ListQuery{Order: "endDate", EndDateMin: &cutoff}, 200, 100)
	if err != nil {
		t.Fatalf("ListClosedMarkets: %v", err)
	}
	if len(got) != 2 || !got[0].Binary || got[1].Binary {
		t.Fatalf("listings = %+v", got)
	}

	c := g.calls[0]
	if c.url != "https://gamma.example/markets" {
		t.Fatalf("url = %q", c.url)
	}
	checks := map[string]string{
		"closed": "true", "limit": "100", "offset": "200",
		"order": "endDate", "ascending": "false", "end_date_min": "2024-03-01T00:00:00Z",
	}
	for k, want := range checks {
		if got := c.params.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestGammaConditionID(t *testing.T) {
	const cid = "0xABCDEF0000000000000000000000000000000000000000000000000000000001"
	g := &fakeGetter{respond: func(rawURL string, _ url.Values) (json.RawMessage, error) {
		switch rawURL {
		case "https://gamma.example/markets/1":
			return json.RawMessage(`{"id":"1","conditionId":"` + cid + `"}`), nil
		case "https://gamma.example/markets/2":
			return json.RawMessage(`{"id":"2"}`), nil
		case "https://gamma.example/markets/3":
			return json.RawMessage(`{"id":"3","conditionId":"0x1234"}`), nil
		}
		return nil, &domain.PermanentError{StatusCode: 404}
	}}
	client := NewGammaClient("https://gamma.example", g)
	ctx := context.Background()

	got, err := client.ConditionID(ctx, "1")
	if err != nil {
		t.Fatalf("ConditionID: %v", err)
	}
	if got != "0xabcdef0000000000000000000000000000000000000000000000000000000001" {
		t.Fatalf("got %q", got)
	}

	if _, err := client.ConditionID(ctx, "2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing conditionId: got %v", err)
	}
	if _, err := client.ConditionID(ctx, "3"); !errors.Is(err, domain.ErrSchema) {
		t.Fatalf("short conditionId: got %v", err)
	}
	if _, err := client.ConditionID(ctx, "404"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown market: got %v", err)
	}
}

func TestClobPriceHistoryWindows(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(70 * 24 * time.Hour)

	g := &fakeGetter{respond: func(_ string, p url.Values) (json.RawMessage, error) {
		ts := p.Get("startTs")
		return json.RawMessage(`{"history":[{"t":` + ts + `,"p":0.5}]}`), nil
	}}
	client := NewClobClient("https://clob.example", g)

	res := client.PriceHistory(context.Background(), PriceHistoryRequest{
		TokenID: "tok", Start: start, End: end, WindowDays: 30, Fidelity: 1440,
	})
	if res.Err != nil || res.Truncated {
		t.Fatalf("err=%v truncated=%v", res.Err, res.Truncated)
	}
	if len(g.calls) != 3 {
		t.Fatalf("calls = %d, want 3 windows", len(g.calls))
	}
	first := g.calls[0].params
	if first.Get("market") != "tok" || first.Get("fidelity") != "1440" {
		t.Fatalf("params = %v", first)
	}
	if first.Get("endTs") != strconv.FormatInt(start.Unix()+30*86400, 10) {
		t.Fatalf("endTs = %s", first.Get("endTs"))
	}
	if last := g.calls[2].params.Get("endTs"); last != strconv.FormatInt(end.Unix(), 10) {
		t.Fatalf("last endTs = %s", last)
	}
	if len(res.Items) != 3 {
		t.Fatalf("samples = %d", len(res.Items))
	}
}

func TestClobPriceHistoryHalvesWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * 24 * time.Hour)

	g := &fakeGetter{respond: func(_ string, p url.Values) (json.RawMessage, error) {
		s, _ := strconv.ParseInt(p.Get("startTs"), 10, 64)
		e, _ := strconv.ParseInt(p.Get("endTs"), 10, 64)
		if e-s > 5*86400 {
			return nil, &domain.PermanentError{StatusCode: 400, Body: `{"error":"Interval is too long"}`}
		}
		return json.RawMessage(`{"history":[]}`), nil
	}}
	client := NewClobClient("https://clob.example", g)

	res := client.PriceHistory(context.Background(), PriceHistoryRequest{
		TokenID: "tok", Start: start, End: end, WindowDays: 16,
	})
	if res.Err != nil || res.Truncated {
		t.Fatalf("err=%v truncated=%v", res.Err, res.Truncated)
	}
	// 16 and 8 days rejected, 4 accepted; repeated for each window.
	if got := g.calls[2].params.Get("endTs"); got != strconv.FormatInt(start.Unix()+4*86400, 10) {
		t.Fatalf("third request endTs = %s", got)
	}
}

func TestClobPriceHistoryPermanentError(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := &fakeGetter{respond: func(string, url.Values) (json.RawMessage, error) {
		return nil, &domain.PermanentError{StatusCode: 400, Body: "invalid market"}
	}}
	res := NewClobClient("https://clob.example", g).PriceHistory(context.Background(), PriceHistoryRequest{
		TokenID: "tok", Start: start, End: start.Add(48 * time.Hour),
	})
	if !res.Truncated || !errors.Is(res.Err, domain.ErrPermanent) {
		t.Fatalf("truncated=%v err=%v", res.Truncated, res.Err)
	}
	if len(g.calls) != 1 {
		t.Fatalf("calls = %d", len(g.calls))
	}
}

func TestDataTradesOffsetExceeded(t *testing.T) {
	g := &fakeGetter{respond: func(_ string, p url.Values) (json.RawMessage, error) {
		if p.Get("offset") == "3500" {
			return nil, &domain.PermanentError{StatusCode: 400, Body: `{"error":"max historical activity offset of 3000 exceeded"}`}
		}
		return json.RawMessage(`[{"timestamp":1704412800,"size":10,"price":0.5}]`), nil
	}}
	client := NewDataClient("https://data.example", g)

	page, err := client.Trades(context.Background(), "0xabc", 0, 500)
	if err != nil || len(page) != 1 {
		t.Fatalf("page=%v err=%v", page, err)
	}
	if p := g.calls[0].params; p.Get("market") != "0xabc" || p.Get("limit") != "500" {
		t.Fatalf("params = %v", p)
	}

	_, err = client.Trades(context.Background(), "0xabc", 3500, 500)
	if !errors.Is(err, domain.ErrOffsetCapExceeded) {
		t.Fatalf("got %v, want ErrOffsetCapExceeded", err)
	}
}
