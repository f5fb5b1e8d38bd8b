// Package fetch provides the page-fetching capabilities consumed by
// the research controller: concurrent HTML fetching with readable-text
// extraction, PDF download, and OCR-backed PDF text extraction.
package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodyBytes caps how much of a response is read before extraction.
const maxBodyBytes = 4 << 20

// Fetcher is the consumed content-fetch capability. Every input URL is
// present as a key in the result; an empty value means the fetch or
// the extraction failed. Fetchers never return an error for a single
// URL.
type Fetcher interface {
	FetchAndExtract(ctx context.Context, urls []string) map[string]string
}

// WebFetcher fetches pages with a bounded fan-out and extracts
// readable text.
type WebFetcher struct {
	Client      *http.Client
	Concurrency int
	Logger      *slog.Logger
}

func NewWebFetcher(timeout time.Duration, concurrency int, logger *slog.Logger) *WebFetcher {
	if concurrency < 1 {
		concurrency = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebFetcher{
		Client: &http.Client{
			Timeout: timeout,
		},
		Concurrency: concurrency,
		Logger:      logger,
	}
}

// FetchAndExtract fetches all URLs concurrently, at most Concurrency
// in flight, and waits for the whole batch. Timeouts and extraction
// failures map to empty text.
func (f *WebFetcher) FetchAndExtract(ctx context.Context, urls []string) map[string]string {
	results := make(map[string]string, len(urls))
	var mu sync.Mutex
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, f.Concurrency)
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			text := f.fetchOne(ctx, u)

			mu.Lock()
			results[u] = text
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	return results
}

func (f *WebFetcher) fetchOne(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.Client.Do(req)
	if err != nil {
		f.Logger.Debug("fetch failed", "url", pageURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text") {
		return ""
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(body, parsed)
	if err != nil {
		f.Logger.Debug("extraction failed", "url", pageURL, "error", err)
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
