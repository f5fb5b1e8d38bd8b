package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxPdfBytes caps PDF downloads.
const maxPdfBytes = 32 << 20

// PdfFetcher is the consumed capability for the one-shot PDF
// enrichment. Download returns the raw bytes plus the response
// content type so the store can gate on it.
type PdfFetcher interface {
	Download(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// HTTPPdfFetcher downloads PDFs over plain HTTP with a generous
// timeout.
type HTTPPdfFetcher struct {
	Client *http.Client
}

func NewPdfFetcher(timeout time.Duration) *HTTPPdfFetcher {
	return &HTTPPdfFetcher{
		Client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPPdfFetcher) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPdfBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
