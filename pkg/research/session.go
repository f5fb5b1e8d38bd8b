package research

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/scoutly/scoutly/pkg/answer"
	"github.com/scoutly/scoutly/pkg/clients"
	"github.com/scoutly/scoutly/pkg/config"
	"github.com/scoutly/scoutly/pkg/database"
	"github.com/scoutly/scoutly/pkg/embeddings"
	"github.com/scoutly/scoutly/pkg/evaluate"
	"github.com/scoutly/scoutly/pkg/fetch"
	"github.com/scoutly/scoutly/pkg/index"
	"github.com/scoutly/scoutly/pkg/planner"
	"github.com/scoutly/scoutly/pkg/search"
	"github.com/scoutly/scoutly/pkg/splitter"
	"github.com/scoutly/scoutly/pkg/store"
	"github.com/scoutly/scoutly/pkg/vectorstore"
)

// Session bundles a wired engine with the session-scoped resources it
// owns, so callers can clean up afterwards.
type Session struct {
	Engine *Engine
	Store  *store.Store
	Table  string

	db *database.PostgresDB
}

// NewSession wires the live capabilities for one question: a fresh
// content store folder, a fresh pgvector chunk table, and the search,
// fetch, planning, evaluation and answering stacks around them.
func NewSession(ctx context.Context, cfg *config.Config, db *database.PostgresDB, llm clients.TextGenerator, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init embedder: %w", err)
	}

	if err := db.EnsureVectorExtension(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure vector extension: %w", err)
	}

	table := "research_" + uuid.NewString()[:8]
	if err := db.CreateChunkTable(ctx, table, embeddings.Dimension); err != nil {
		return nil, fmt.Errorf("failed to create session chunk table: %w", err)
	}

	chunkStore, err := vectorstore.NewPGVectorStore(db.Pool, table)
	if err != nil {
		return nil, fmt.Errorf("invalid session table name: %w", err)
	}

	var extractor store.PDFExtractor
	if cfg.MistralApiKey != "" {
		extractor = fetch.NewMistralOCR(cfg.MistralApiKey)
	}
	contentStore, err := store.New(cfg.StorageRoot, extractor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create content store: %w", err)
	}

	var pdfFetcher fetch.PdfFetcher
	if extractor != nil {
		pdfFetcher = fetch.NewPdfFetcher(cfg.PdfTimeout)
	}

	engine, err := NewEngine(Deps{
		Planner:   planner.New(llm, logger),
		Searcher:  search.NewDuckDuckGo(cfg.FetchTimeout, logger),
		Fetcher:   fetch.NewWebFetcher(cfg.FetchTimeout, cfg.FetchConcurrency, logger),
		Pdf:       pdfFetcher,
		Store:     contentStore,
		Index: index.New(
			splitter.New(cfg.ChunkSize, cfg.ChunkOverlap),
			embedder,
			chunkStore,
			logger,
		),
		Evaluator: evaluate.New(llm, logger),
		Answerer:  answer.New(llm, cfg.TopK, logger),

		MaxIterations:   cfg.MaxIterations,
		InitialPerQuery: cfg.InitialResultsPerQuery,
		RetryPerQuery:   cfg.RetryResultsPerQuery,
		TopK:            cfg.TopK,

		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		Engine: engine,
		Store:  contentStore,
		Table:  table,
		db:     db,
	}, nil
}

// Close drops the session chunk table. The document folder stays on
// disk; its SOURCES.md manifest is the durable citation record.
func (s *Session) Close(ctx context.Context) error {
	return s.db.DropChunkTable(ctx, s.Table)
}
