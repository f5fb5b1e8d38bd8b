package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const ddgEndpoint = "https://html.duckduckgo.com/html/"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// queryModifiers are appended per search type to steer results toward
// the right kind of source.
var queryModifiers = map[Type]string{
	TypeGeneral:    "",
	TypeAcademic:   " scholarly article",
	TypeNews:       " latest news",
	TypeComparison: " vs comparison review",
	TypeHowTo:      " guide tutorial",
}

// DuckDuckGo queries the DuckDuckGo HTML endpoint and parses the
// result page. It satisfies Provider.
type DuckDuckGo struct {
	Client *http.Client
	Logger *slog.Logger
}

func NewDuckDuckGo(timeout time.Duration, logger *slog.Logger) *DuckDuckGo {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDuckGo{
		Client: &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Search runs every keyword (plus its search-type variant) as a
// sub-query, concurrently, and merges the results deduplicated by URL
// in input order. A failed sub-query contributes nothing; it never
// fails the whole round.
func (d *DuckDuckGo) Search(ctx context.Context, keywords []string, searchType Type, resultsPerQuery int) ([]Hit, time.Duration, error) {
	if resultsPerQuery < 1 {
		resultsPerQuery = 5
	}
	queries := expandQueries(keywords, searchType)

	started := time.Now()
	perQuery := make([][]Hit, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			hits, err := d.querySingle(ctx, q, resultsPerQuery)
			if err != nil {
				d.Logger.Warn("search sub-query failed", "query", q, "error", err)
				return
			}
			perQuery[i] = hits
		}(i, q)
	}
	wg.Wait()

	// Merge in input order so dedup stays deterministic regardless of
	// which sub-query finished first.
	var all []Hit
	for _, hits := range perQuery {
		all = append(all, hits...)
	}
	return Dedup(all), time.Since(started), nil
}

// expandQueries pairs every keyword with its search-type variant and
// drops case-insensitive duplicates, preserving order.
func expandQueries(keywords []string, searchType Type) []string {
	modifier := queryModifiers[searchType]

	var expanded []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		expanded = append(expanded, kw)
		if modifier != "" {
			expanded = append(expanded, kw+modifier)
		}
	}

	seen := make(map[string]bool, len(expanded))
	var unique []string
	for _, q := range expanded {
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, q)
	}
	return unique
}

func (d *DuckDuckGo) querySingle(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ddgEndpoint+"?"+form.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse result page: %w", err)
	}

	var hits []Hit
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		hits = append(hits, Hit{
			Title:   strings.TrimSpace(link.Text()),
			URL:     resolveResultURL(href),
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").Text()),
		})
		return len(hits) < maxResults
	})

	return hits, nil
}

// resolveResultURL unwraps DuckDuckGo's redirect links
// (//duckduckgo.com/l/?uddg=<encoded>) to the target URL.
func resolveResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}
