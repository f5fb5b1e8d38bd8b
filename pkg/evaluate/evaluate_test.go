package evaluate

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"strings"
	"testing"
)

type stubLLM struct {
	out    string
	err    error
	prompt string
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.out, s.err
}

func (s *stubLLM) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield(s.out, s.err)
	}
}

func TestEvaluateFailOpen(t *testing.T) {
	tests := []struct {
		name string
		e    *Evaluator
	}{
		{"nil generator", New(nil, nil)},
		{"model error", New(&stubLLM{err: errors.New("rate limited")}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.e.Evaluate(context.Background(), "q", "some context")
			if !v.Sufficient {
				t.Error("expected fail-open verdict to be sufficient")
			}
			if !v.Degraded {
				t.Error("expected Degraded to be set")
			}
		})
	}
}

func TestEvaluateParsesVerdict(t *testing.T) {
	llm := &stubLLM{out: `SUFFICIENT: no
REASON: missing recent data
RETRY_KEYWORDS: 2024 statistics; latest figures
REFINED_QUERY: most recent solar adoption statistics`}

	v := New(llm, nil).Evaluate(context.Background(), "q", "ctx")
	if v.Sufficient {
		t.Error("expected insufficient")
	}
	if v.Reason != "missing recent data" {
		t.Errorf("Reason = %q", v.Reason)
	}
	want := []string{"2024 statistics", "latest figures"}
	if !reflect.DeepEqual(v.RetryKeywords, want) {
		t.Errorf("RetryKeywords = %v, want %v", v.RetryKeywords, want)
	}
	if v.RefinedQuery != "most recent solar adoption statistics" {
		t.Errorf("RefinedQuery = %q", v.RefinedQuery)
	}
	if v.Degraded {
		t.Error("parsed verdict should not be degraded")
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want Verdict
	}{
		{
			name: "sufficient yes",
			out:  "SUFFICIENT: yes\nREASON: covers everything",
			want: Verdict{Sufficient: true, Reason: "covers everything"},
		},
		{
			name: "sufficient true variant",
			out:  "SUFFICIENT: TRUE",
			want: Verdict{Sufficient: true, Reason: "unable to evaluate"},
		},
		{
			name: "garbage defaults insufficient",
			out:  "I think the context looks fine.",
			want: Verdict{Sufficient: false, Reason: "unable to evaluate"},
		},
		{
			name: "empty output",
			out:  "",
			want: Verdict{Sufficient: false, Reason: "unable to evaluate"},
		},
		{
			name: "none keyword skipped",
			out:  "SUFFICIENT: yes\nRETRY_KEYWORDS: none",
			want: Verdict{Sufficient: true, Reason: "unable to evaluate"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseVerdict(tt.out); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseVerdict() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseVerdictCapsRetryKeywords(t *testing.T) {
	v := parseVerdict("SUFFICIENT: no\nRETRY_KEYWORDS: a; b; c; d; e")
	if len(v.RetryKeywords) != 3 {
		t.Errorf("RetryKeywords = %v, want 3 entries", v.RetryKeywords)
	}
}

func TestEvaluateTruncatesContext(t *testing.T) {
	llm := &stubLLM{out: "SUFFICIENT: yes"}
	long := strings.Repeat("é", 5000)
	New(llm, nil).Evaluate(context.Background(), "q", long)

	// The prompt should carry at most maxContextRunes of the context.
	if count := strings.Count(llm.prompt, "é"); count > maxContextRunes {
		t.Errorf("prompt contains %d context runes, max %d", count, maxContextRunes)
	}
}
