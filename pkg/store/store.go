// Package store owns the on-disk document collection for one research
// session: extracted page texts, downloaded PDFs, and the SOURCES.md
// manifest mapping storage ids back to source URLs.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/scoutly/scoutly/pkg/search"
)

// Kind distinguishes how a document was acquired.
type Kind string

const (
	KindWebpage Kind = "webpage"
	KindPDF     Kind = "pdf"
)

// Document is one ingested source. Documents are never mutated or
// deleted within a session.
type Document struct {
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
	StorageID string `json:"storage_id"`
	Body      string `json:"-"`
	Kind      Kind   `json:"kind"`
}

// PDFExtractor is the consumed capability that turns raw PDF bytes
// into text.
type PDFExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Store is the content store for a single session. Ingestion is
// idempotent per URL and storage ids are assigned monotonically, so
// incremental rounds never collide with files already on disk.
type Store struct {
	dir       string
	extractor PDFExtractor
	logger    *slog.Logger

	mu      sync.Mutex
	docs    []Document
	byURL   map[string]string // url -> storage id
	nextID  int
	entries []SourceEntry
}

// New creates a fresh session folder under root.
func New(root string, extractor PDFExtractor, logger *slog.Logger) (*Store, error) {
	dir := filepath.Join(root, uuid.NewString()[:8])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session folder: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:       dir,
		extractor: extractor,
		logger:    logger,
		byURL:     make(map[string]string),
		nextID:    1,
	}, nil
}

// Open reattaches to an existing session folder, rebuilding the
// url↔storage-id manifest from SOURCES.md and reloading webpage
// bodies. PDFs keep their manifest entry but need re-extraction to
// recover a body, so they reload body-less.
func Open(dir string, extractor PDFExtractor, logger *slog.Logger) (*Store, error) {
	entries, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		dir:       dir,
		extractor: extractor,
		logger:    logger,
		byURL:     make(map[string]string, len(entries)),
		nextID:    1,
		entries:   entries,
	}
	for _, e := range entries {
		s.byURL[e.URL] = e.File

		body := ""
		kind := Kind(e.Type)
		if kind != KindPDF {
			kind = KindWebpage
			if data, err := os.ReadFile(filepath.Join(dir, e.File)); err == nil {
				body = string(data)
			}
		}
		s.docs = append(s.docs, Document{
			SourceURL: e.URL,
			Title:     e.Title,
			StorageID: e.File,
			Body:      body,
			Kind:      kind,
		})
		if id := storageIDNumber(e.File); id >= s.nextID {
			s.nextID = id + 1
		}
	}
	return s, nil
}

// storageIDNumber pulls the numeric counter out of a storage id like
// "RES_4.md" or "7.pdf". Returns 0 when none is found.
func storageIDNumber(file string) int {
	n := 0
	found := false
	for _, r := range file {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			found = true
		} else if found {
			break
		}
	}
	return n
}

// Dir returns the session folder path.
func (s *Store) Dir() string {
	return s.dir
}

// Ingest stores the hits that fetched non-empty text, in hit order.
// URLs already in the manifest are skipped, so re-ingesting a seen hit
// is a no-op. Returns only the newly created documents.
func (s *Store) Ingest(hits []search.Hit, texts map[string]string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []Document
	for _, hit := range hits {
		if hit.URL == "" {
			continue
		}
		if _, seen := s.byURL[hit.URL]; seen {
			continue
		}
		text := texts[hit.URL]
		if text == "" {
			continue
		}

		storageID := fmt.Sprintf("RES_%d.md", s.nextID)
		if err := os.WriteFile(filepath.Join(s.dir, storageID), []byte(text), 0644); err != nil {
			s.logger.Warn("failed to write document", "url", hit.URL, "error", err)
			continue
		}
		s.nextID++

		doc := Document{
			SourceURL: hit.URL,
			Title:     hit.Title,
			StorageID: storageID,
			Body:      text,
			Kind:      KindWebpage,
		}
		s.docs = append(s.docs, doc)
		s.byURL[hit.URL] = storageID
		s.entries = append(s.entries, SourceEntry{
			Title: hit.Title,
			URL:   hit.URL,
			Type:  string(KindWebpage),
			File:  storageID,
		})
		added = append(added, doc)
	}

	if len(added) > 0 {
		if err := writeManifest(s.dir, s.entries); err != nil {
			s.logger.Warn("failed to write manifest", "error", err)
		}
	}
	return added
}

// IngestPDF stores one downloaded PDF. It accepts only payloads whose
// content type or URL extension indicates a PDF, and rejects documents
// whose extracted text is empty. Returns nil when rejected.
func (s *Store) IngestPDF(ctx context.Context, url string, data []byte, contentType string) (*Document, error) {
	if !looksLikePDF(url, contentType) {
		return nil, nil
	}
	if s.extractor == nil {
		return nil, fmt.Errorf("no PDF extractor configured")
	}

	s.mu.Lock()
	if _, seen := s.byURL[url]; seen {
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()

	text, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("pdf extraction failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.byURL[url]; seen {
		return nil, nil
	}

	storageID := fmt.Sprintf("%d.pdf", s.nextID)
	if err := os.WriteFile(filepath.Join(s.dir, storageID), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	s.nextID++

	title := url
	if i := strings.LastIndex(url, "/"); i >= 0 && i < len(url)-1 {
		title = url[i+1:]
	}

	doc := Document{
		SourceURL: url,
		Title:     title,
		StorageID: storageID,
		Body:      text,
		Kind:      KindPDF,
	}
	s.docs = append(s.docs, doc)
	s.byURL[url] = storageID
	s.entries = append(s.entries, SourceEntry{
		Title: title,
		URL:   url,
		Type:  string(KindPDF),
		File:  storageID,
	})

	if err := writeManifest(s.dir, s.entries); err != nil {
		s.logger.Warn("failed to write manifest", "error", err)
	}
	return &doc, nil
}

// AllDocuments returns every document ingested so far, in ingestion
// order. The index is rebuilt from this cumulative view each round.
func (s *Store) AllDocuments() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Manifest returns the current manifest entries.
func (s *Store) Manifest() []SourceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SourceEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func looksLikePDF(url, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(url), ".pdf")
}
