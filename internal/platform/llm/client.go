// Package llm wraps an OpenAI-compatible chat completions endpoint (OpenAI,
// Groq, and similar) for single-shot JSON answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// Config configures a Client.
type Config struct {
	BaseURL   string // e.g. "https://api.groq.com/openai/v1"
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// Client sends one system+user prompt and returns the first choice's text.
type Client struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// New creates a Client. Retries are left to the caller, so the SDK's own
// retry loop is disabled.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 64
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &Client{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// CompleteJSON asks for a JSON object answer at temperature 0.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(c.maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify maps SDK errors onto the domain failure taxonomy.
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &domain.TransientError{Err: err}
	}
	code := apiErr.StatusCode
	if code == http.StatusTooManyRequests || code >= 500 {
		return &domain.TransientError{StatusCode: code, Body: apiErr.Message, Err: err}
	}
	return &domain.PermanentError{StatusCode: code, Body: apiErr.Message}
}
