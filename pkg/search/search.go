package search

import (
	"context"
	"strings"
	"time"
)

// Type classifies a search so the provider can tune its queries.
type Type string

const (
	TypeGeneral    Type = "general"
	TypeAcademic   Type = "academic"
	TypeNews       Type = "news"
	TypeComparison Type = "comparison"
	TypeHowTo      Type = "how-to"
)

// ParseType maps a free-form label onto a known search type,
// defaulting to general.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeAcademic:
		return TypeAcademic
	case TypeNews:
		return TypeNews
	case TypeComparison:
		return TypeComparison
	case TypeHowTo:
		return TypeHowTo
	default:
		return TypeGeneral
	}
}

// Hit is a single search result. URL is the unique key within a
// result set.
type Hit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Provider is the consumed search capability. Implementations must
// deduplicate hits by URL across all keyword sub-queries, keeping the
// first occurrence in input order, and must swallow individual
// sub-query failures.
type Provider interface {
	Search(ctx context.Context, keywords []string, searchType Type, resultsPerQuery int) ([]Hit, time.Duration, error)
}

// Dedup keeps exactly one hit per URL, the first occurrence in input
// order. Hits with an empty URL are dropped.
func Dedup(hits []Hit) []Hit {
	seen := make(map[string]bool, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.URL == "" || seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		out = append(out, h)
	}
	return out
}
