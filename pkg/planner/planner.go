// Package planner turns a free-text question into a structured search
// plan. Planning never fails outward: every malformed field falls back
// to its default, and a dead generation capability falls back to a
// keyword heuristic over the question itself.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/scoutly/scoutly/pkg/clients"
	"github.com/scoutly/scoutly/pkg/search"
)

const (
	maxKeywords      = 5
	maxRetryKeywords = 3
	defaultMaxPages  = 5
	minPages         = 3
	maxPages         = 15
)

// Plan is the immutable search strategy for one question.
type Plan struct {
	Keywords      []string    `json:"keywords"`
	MaxPages      int         `json:"max_pages"`
	RetryKeywords []string    `json:"retry_keywords"`
	SearchType    search.Type `json:"search_type"`
	FocusAreas    []string    `json:"focus_areas,omitempty"`

	// Degraded records that the model-backed path failed and the
	// heuristic produced the keywords. Internal signal only.
	Degraded bool `json:"degraded,omitempty"`
}

type Planner struct {
	LLM    clients.TextGenerator
	Logger *slog.Logger
}

func New(llm clients.TextGenerator, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{LLM: llm, Logger: logger}
}

const planPromptTemplate = `You are a research planner. Derive a web search strategy for the question below.

Respond with exactly these labeled lines and nothing else:
KEYWORDS: <1-5 search phrases separated by ;>
MAX_PAGES: <number of pages worth scraping, 3-15>
RETRY_KEYWORDS: <0-3 alternative phrases separated by ; for a second attempt>
SEARCH_TYPE: <one of: general, academic, news, comparison, how-to>
FOCUS_AREAS: <key aspects to cover separated by ;>

Question: %s`

// Plan builds a ResearchPlan for the question. It never returns an
// error; on any failure the deterministic heuristic supplies the plan.
func (p *Planner) Plan(ctx context.Context, question string) *Plan {
	if p.LLM == nil {
		return p.fallback(question)
	}

	out, err := p.LLM.Complete(ctx, fmt.Sprintf(planPromptTemplate, question))
	if err != nil {
		p.Logger.Warn("planner model call failed, using heuristic", "error", err)
		return p.fallback(question)
	}

	plan := parsePlan(out)
	if len(plan.Keywords) == 0 {
		p.Logger.Warn("planner output had no usable keywords, using heuristic")
		return p.fallback(question)
	}
	return plan
}

func (p *Planner) fallback(question string) *Plan {
	return &Plan{
		Keywords:   HeuristicKeywords(question),
		MaxPages:   defaultMaxPages,
		SearchType: search.TypeGeneral,
		Degraded:   true,
	}
}

// parsePlan decodes the labeled-field response. Each absent or
// malformed field gets its default; nothing aborts the plan.
func parsePlan(out string) *Plan {
	plan := &Plan{
		MaxPages:   defaultMaxPages,
		SearchType: search.TypeGeneral,
	}

	for _, line := range strings.Split(out, "\n") {
		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(label)) {
		case "KEYWORDS":
			plan.Keywords = clampList(splitList(value), maxKeywords)
		case "MAX_PAGES":
			if n, err := strconv.Atoi(value); err == nil {
				plan.MaxPages = n
			}
		case "RETRY_KEYWORDS":
			plan.RetryKeywords = clampList(splitList(value), maxRetryKeywords)
		case "SEARCH_TYPE":
			plan.SearchType = search.ParseType(value)
		case "FOCUS_AREAS":
			plan.FocusAreas = splitList(value)
		}
	}

	if plan.MaxPages < minPages {
		plan.MaxPages = minPages
	}
	if plan.MaxPages > maxPages {
		plan.MaxPages = maxPages
	}
	return plan
}

// splitList breaks a "; a; b, c" style value into trimmed entries.
func splitList(value string) []string {
	norm := strings.ReplaceAll(value, ",", ";")
	var out []string
	for _, part := range strings.Split(norm, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// clampList dedupes case-insensitively, preserving first-seen order,
// and caps the length.
func clampList(items []string, max int) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	return out
}

// stopWords are question words and filler excluded by the heuristic.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "do": true,
	"does": true, "did": true, "can": true, "could": true, "should": true,
	"would": true, "will": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "whom": true, "whose": true, "why": true,
	"how": true, "of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "from": true, "with": true, "about": true, "and": true,
	"or": true, "but": true, "not": true, "it": true, "its": true,
	"this": true, "that": true, "these": true, "those": true, "there": true,
	"please": true, "tell": true, "me": true, "my": true, "i": true,
}

// HeuristicKeywords strips question words and stop words from the
// question and joins the first four remaining content words into a
// single keyword phrase.
func HeuristicKeywords(question string) []string {
	var words []string
	for _, raw := range strings.Fields(strings.ToLower(question)) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
		})
		if word == "" || stopWords[word] {
			continue
		}
		words = append(words, word)
		if len(words) == 4 {
			break
		}
	}
	if len(words) == 0 {
		// Nothing survived the filter; search the question verbatim.
		q := strings.TrimSpace(question)
		if q == "" {
			return nil
		}
		return []string{q}
	}
	return []string{strings.Join(words, " ")}
}
