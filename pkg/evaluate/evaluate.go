// Package evaluate judges whether retrieved context is enough to
// answer the original question, and proposes remedial search keywords
// when it is not.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scoutly/scoutly/pkg/clients"
)

const (
	maxRetryKeywords = 3

	// maxContextRunes bounds the retrieved-context prefix sent to the
	// model.
	maxContextRunes = 2000
)

// Verdict is one sufficiency judgment. It lives only for the current
// iteration's decision.
type Verdict struct {
	Sufficient    bool     `json:"sufficient"`
	Reason        string   `json:"reason"`
	RetryKeywords []string `json:"retry_keywords,omitempty"`
	RefinedQuery  string   `json:"refined_query,omitempty"`

	// Degraded records that the model-backed path failed and the
	// fail-open default was applied.
	Degraded bool `json:"degraded,omitempty"`
}

type Evaluator struct {
	LLM    clients.TextGenerator
	Logger *slog.Logger
}

func New(llm clients.TextGenerator, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{LLM: llm, Logger: logger}
}

const evaluatePromptTemplate = `You judge whether gathered research context is enough to answer a question completely.

Respond with exactly these labeled lines and nothing else:
SUFFICIENT: <yes or no>
REASON: <one sentence>
RETRY_KEYWORDS: <0-3 search phrases separated by ; that would fill the gaps, empty if sufficient>
REFINED_QUERY: <a sharper restatement of the question, empty if none>

Question: %s

Context:
%s`

// Evaluate returns a verdict for the question against the retrieved
// context. If the generation capability itself fails the verdict is
// sufficient=true: fail-open, so an unreliable evaluator cannot spin
// the retry loop forever.
func (e *Evaluator) Evaluate(ctx context.Context, question, retrieved string) Verdict {
	if e.LLM == nil {
		return failOpen("evaluation capability unavailable")
	}

	prompt := fmt.Sprintf(evaluatePromptTemplate, question, truncateRunes(retrieved, maxContextRunes))
	out, err := e.LLM.Complete(ctx, prompt)
	if err != nil {
		e.Logger.Warn("sufficiency evaluation failed, assuming sufficient", "error", err)
		return failOpen(fmt.Sprintf("evaluation failed (%v), assuming sufficient", err))
	}

	return parseVerdict(out)
}

func failOpen(reason string) Verdict {
	return Verdict{
		Sufficient: true,
		Reason:     reason,
		Degraded:   true,
	}
}

// parseVerdict decodes the labeled-field response line by line. Any
// unparseable field keeps its default: insufficient, "unable to
// evaluate", no keywords.
func parseVerdict(out string) Verdict {
	v := Verdict{
		Sufficient: false,
		Reason:     "unable to evaluate",
	}

	for _, line := range strings.Split(out, "\n") {
		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(label)) {
		case "SUFFICIENT":
			switch strings.ToLower(value) {
			case "yes", "true":
				v.Sufficient = true
			case "no", "false":
				v.Sufficient = false
			}
		case "REASON":
			if value != "" {
				v.Reason = value
			}
		case "RETRY_KEYWORDS":
			v.RetryKeywords = splitKeywords(value)
		case "REFINED_QUERY":
			v.RefinedQuery = value
		}
	}
	return v
}

func splitKeywords(value string) []string {
	norm := strings.ReplaceAll(value, ",", ";")
	var out []string
	for _, part := range strings.Split(norm, ";") {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, "none") {
			continue
		}
		out = append(out, part)
		if len(out) == maxRetryKeywords {
			break
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
