package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

const (
	defaultUserAgent = "polyseries/1.0"
	maxErrorBody     = 300
)

// Options configures a Fetcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Retry     RetryPolicy
}

// Fetcher performs JSON GET requests. Every attempt, retries included, first
// draws from the shared Limiter.
type Fetcher struct {
	client  *resty.Client
	limiter Limiter
	retry   RetryPolicy
	logger  *slog.Logger
}

// New creates a Fetcher drawing from limiter.
func New(limiter Limiter, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "application/json")

	return &Fetcher{
		client:  client,
		limiter: limiter,
		retry:   opts.Retry,
		logger:  logger.With(slog.String("component", "fetch")),
	}
}

// GetJSON fetches rawURL with the given query parameters and returns the raw
// JSON body. An empty body is returned as JSON null.
//
// Failures are *domain.TransientError (after the retry budget is spent),
// *domain.PermanentError or *domain.SchemaError.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	var body json.RawMessage
	attempt := 0

	err := f.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		b, err := f.once(ctx, rawURL, params)
		if err != nil {
			if domain.IsRetryable(err) {
				f.logger.DebugContext(ctx, "request failed, will retry",
					slog.String("url", rawURL),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()),
				)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) once(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch: rate limit wait: %w", err)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(rawURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch: %s: %w", rawURL, ctxErr)
		}
		// Client timeouts land here too and are retried.
		return nil, &domain.TransientError{Err: err}
	}

	if err := checkHTTPStatus(resp.StatusCode(), resp.Body()); err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, &domain.SchemaError{What: fmt.Sprintf("%s: response is not JSON", rawURL)}
	}
	return json.RawMessage(body), nil
}

// checkHTTPStatus maps non-2xx status codes to the failure taxonomy.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > maxErrorBody {
		bodyStr = bodyStr[:maxErrorBody]
	}

	switch {
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return &domain.TransientError{StatusCode: statusCode, Body: bodyStr}
	default:
		return &domain.PermanentError{StatusCode: statusCode, Body: bodyStr}
	}
}
