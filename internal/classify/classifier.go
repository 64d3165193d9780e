// Package classify labels markets by resolution type, domain and deadline
// date using a chat model, and maintains market_metadata.csv.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/fetch"
)

// Classifier labels one market from its title and description.
//
// An answer the model got wrong is not an error: it comes back as a
// Classification with Status "error". A returned error means the request
// itself failed.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (domain.Classification, error)
}

// Completer sends a system and user prompt and returns the model's text.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// Options configures an LLMClassifier.
type Options struct {
	// MaxAttempts bounds how often an invalid answer is asked again.
	MaxAttempts int
	// RetryDelay is the pause between attempts after an invalid answer.
	RetryDelay time.Duration
	// Request retries rate limits and server errors of a single request.
	Request fetch.RetryPolicy
}

// LLMClassifier is a Classifier backed by a chat model.
type LLMClassifier struct {
	completer Completer
	opts      Options
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewLLMClassifier creates a classifier that asks completer.
func NewLLMClassifier(completer Completer, opts Options) *LLMClassifier {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	return &LLMClassifier{completer: completer, opts: opts, sleep: sleepContext}
}

// Classify asks the model up to MaxAttempts times for a valid answer.
func (c *LLMClassifier) Classify(ctx context.Context, title, description string) (domain.Classification, error) {
	user := userPrompt(title, description)

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		var text string
		err := c.opts.Request.Do(ctx, func(ctx context.Context) error {
			t, err := c.completer.CompleteJSON(ctx, systemPrompt, user)
			text = t
			return err
		})
		if err != nil {
			return domain.Classification{}, fmt.Errorf("classify: request: %w", err)
		}

		if a, err := ParseResponse(text); err == nil {
			return domain.Classification{
				Type:   a.Type,
				Domain: a.Domain,
				Date:   a.Date,
				Status: domain.ClassificationOK,
			}, nil
		}

		if attempt < c.opts.MaxAttempts {
			if err := c.sleep(ctx, c.opts.RetryDelay); err != nil {
				return domain.Classification{}, fmt.Errorf("classify: retry wait: %w", err)
			}
		}
	}

	return domain.Classification{Status: domain.ClassificationError, Error: CodeInvalidResponse}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
