// Package index owns the chunking policy and the rebuild strategy for
// the session knowledge base. Embedding and vector storage are
// consumed capabilities; the decision to rebuild the whole index from
// the accumulated store each round, rather than append incrementally,
// lives here. Session document counts are tens, not thousands, so
// reprocessing is the simpler correct choice.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scoutly/scoutly/pkg/splitter"
	"github.com/scoutly/scoutly/pkg/store"
)

// Chunk is the unit of semantic indexing. SourceURL and StorageID tie
// every retrieved chunk back to the ingested document that produced
// it.
type Chunk struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
	StorageID string `json:"storage_id"`
}

// Embedder is the consumed embedding capability.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore is the consumed vector-index capability. Replace swaps
// the entire indexed set; Search returns chunks by decreasing
// similarity.
type ChunkStore interface {
	Replace(ctx context.Context, chunks []Chunk, embeddings [][]float32) error
	Search(ctx context.Context, embedding []float32, k int) ([]Chunk, error)
}

// Index glues the splitter, embedder and chunk store together.
type Index struct {
	Splitter *splitter.Splitter
	Embedder Embedder
	Store    ChunkStore
	Logger   *slog.Logger
}

func New(sp *splitter.Splitter, embedder Embedder, chunkStore ChunkStore, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		Splitter: sp,
		Embedder: embedder,
		Store:    chunkStore,
		Logger:   logger,
	}
}

// Rebuild re-indexes every document, replacing whatever was indexed
// before. Returns the number of chunks indexed.
func (ix *Index) Rebuild(ctx context.Context, docs []store.Document) (int, error) {
	var chunks []Chunk
	for _, doc := range docs {
		if doc.Body == "" {
			continue
		}
		for _, piece := range ix.Splitter.Split(doc.Body) {
			chunks = append(chunks, Chunk{
				Text:      piece.Text,
				SourceURL: doc.SourceURL,
				StorageID: doc.StorageID,
			})
		}
	}

	if len(chunks) == 0 {
		if err := ix.Store.Replace(ctx, nil, nil); err != nil {
			return 0, fmt.Errorf("failed to clear index: %w", err)
		}
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := ix.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	if err := ix.Store.Replace(ctx, chunks, embeddings); err != nil {
		return 0, fmt.Errorf("failed to replace index contents: %w", err)
	}

	ix.Logger.Info("index rebuilt", "documents", len(docs), "chunks", len(chunks))
	return len(chunks), nil
}

// Query embeds the text and returns the top-k most similar chunks.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Chunk, error) {
	embedding, err := ix.Embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	chunks, err := ix.Store.Search(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return chunks, nil
}
