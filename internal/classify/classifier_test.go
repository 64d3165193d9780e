package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
	"github.com/alanyoungcy/polyseries/internal/fetch"
)

type scriptedCompleter struct {
	answers []string
	errs    []error
	calls   int
	users   []string
}

func (s *scriptedCompleter) CompleteJSON(_ context.Context, system, user string) (string, error) {
	i := s.calls
	s.calls++
	s.users = append(s.users, user)
	if system == "" {
		return "", errors.New("empty system prompt")
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.answers) {
		return s.answers[i], nil
	}
	return s.answers[len(s.answers)-1], nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClassifier(c Completer, attempts int) *LLMClassifier {
	cl := NewLLMClassifier(c, Options{
		MaxAttempts: attempts,
		RetryDelay:  time.Millisecond,
		Request:     fetch.RetryPolicy{MaxAttempts: 3, Sleep: noSleep},
	})
	cl.sleep = noSleep
	return cl
}

func TestClassifyValidAnswer(t *testing.T) {
	c := &scriptedCompleter{answers: []string{`{"type":"2","domain":"finance","date":"31/03/2026"}`}}
	got, err := newTestClassifier(c, 1).Classify(context.Background(), "BTC above 100k by Q1 2026?", "Resolves YES if...")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := domain.Classification{Type: "2", Domain: "finance", Date: "31/03/2026", Status: domain.ClassificationOK}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if c.users[0] != "Title: BTC above 100k by Q1 2026?\nDescription: Resolves YES if...\n" {
		t.Fatalf("user prompt = %q", c.users[0])
	}
}

func TestClassifyRetriesInvalidAnswers(t *testing.T) {
	c := &scriptedCompleter{answers: []string{`nope`, `{"type":"U","domain":"misc","date":""}`}}
	got, err := newTestClassifier(c, 3).Classify(context.Background(), "t", "d")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ClassificationOK || c.calls != 2 {
		t.Fatalf("got %+v after %d calls", got, c.calls)
	}
}

func TestClassifyGivesUpOnInvalidAnswers(t *testing.T) {
	c := &scriptedCompleter{answers: []string{`{"type":"1","domain":"misc","date":""}`}}
	got, err := newTestClassifier(c, 2).Classify(context.Background(), "t", "d")
	if err != nil {
		t.Fatal(err)
	}
	want := domain.Classification{Status: domain.ClassificationError, Error: CodeInvalidResponse}
	if got != want || c.calls != 2 {
		t.Fatalf("got %+v after %d calls", got, c.calls)
	}
}

func TestClassifyRetriesTransientRequestErrors(t *testing.T) {
	c := &scriptedCompleter{
		errs:    []error{&domain.TransientError{StatusCode: 429, Body: "slow down"}},
		answers: []string{"", `{"type":"U","domain":"sports","date":""}`},
	}
	got, err := newTestClassifier(c, 1).Classify(context.Background(), "t", "d")
	if err != nil {
		t.Fatal(err)
	}
	if got.Domain != "sports" || c.calls != 2 {
		t.Fatalf("got %+v after %d calls", got, c.calls)
	}
}

func TestClassifyPermanentRequestError(t *testing.T) {
	c := &scriptedCompleter{errs: []error{&domain.PermanentError{StatusCode: 401, Body: "bad key"}}}
	_, err := newTestClassifier(c, 3).Classify(context.Background(), "t", "d")
	if !errors.Is(err, domain.ErrPermanent) || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("got %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("calls = %d, want 1", c.calls)
	}
}
