package classify

import (
	"errors"
	"testing"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Answer
		ok   bool
	}{
		{"undated", `{"type":"U","domain":"misc","date":"","reason":"no date"}`, Answer{"U", "misc", ""}, true},
		{"single day", `{"type":"1","domain":"sports","date":"05/11/2026"}`, Answer{"1", "sports", "05/11/2026"}, true},
		{"deadline", ` {"type":"2","domain":"finance","date":"31/12/2025"} `, Answer{"2", "finance", "31/12/2025"}, true},
		{"numeric type", `{"type":2,"domain":"politics","date":"30/06/2026"}`, Answer{"2", "politics", "30/06/2026"}, true},
		{"padded fields", `{"type":" 1 ","domain":" sports ","date":" 01/02/2026 "}`, Answer{"1", "sports", "01/02/2026"}, true},
		{"not json", `type=1`, Answer{}, false},
		{"bad type", `{"type":"3","domain":"misc","date":"01/01/2026"}`, Answer{}, false},
		{"bad domain", `{"type":"U","domain":"weather","date":""}`, Answer{}, false},
		{"iso date", `{"type":"1","domain":"misc","date":"2026-01-01"}`, Answer{}, false},
		{"impossible date", `{"type":"1","domain":"misc","date":"31/02/2026"}`, Answer{}, false},
		{"dated without date", `{"type":"1","domain":"misc","date":""}`, Answer{}, false},
		{"undated with date", `{"type":"U","domain":"misc","date":"01/01/2026"}`, Answer{}, false},
		{"missing keys", `{}`, Answer{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.text)
			if !tt.ok {
				if !errors.Is(err, ErrInvalidResponse) {
					t.Fatalf("want ErrInvalidResponse, got %v (%+v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
