package index

import (
	"context"
	"errors"
	"testing"

	"github.com/scoutly/scoutly/pkg/splitter"
	"github.com/scoutly/scoutly/pkg/store"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{float32(len(text))}, nil
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

// memChunkStore holds the last replaced set and returns the first k
// chunks on search.
type memChunkStore struct {
	chunks  []Chunk
	replErr error
}

func (m *memChunkStore) Replace(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if m.replErr != nil {
		return m.replErr
	}
	if len(chunks) != len(embeddings) {
		return errors.New("chunk/embedding length mismatch")
	}
	m.chunks = chunks
	return nil
}

func (m *memChunkStore) Search(ctx context.Context, embedding []float32, k int) ([]Chunk, error) {
	if k > len(m.chunks) {
		k = len(m.chunks)
	}
	return m.chunks[:k], nil
}

func TestRebuild(t *testing.T) {
	cs := &memChunkStore{}
	ix := New(splitter.New(20, 5), &stubEmbedder{}, cs, nil)

	docs := []store.Document{
		{SourceURL: "https://a.example", StorageID: "RES_1.md", Body: "this is the body of document a which is long enough to split"},
		{SourceURL: "https://b.example", StorageID: "RES_2.md", Body: "short"},
		{SourceURL: "https://c.example", StorageID: "RES_3.md"}, // body-less pdf reload
	}

	n, err := ix.Rebuild(context.Background(), docs)
	if err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	if n != len(cs.chunks) {
		t.Errorf("Rebuild() = %d, store holds %d", n, len(cs.chunks))
	}
	if n < 3 {
		t.Errorf("expected doc a to split into multiple chunks, got %d total", n)
	}

	// Every chunk must trace back to its document.
	for _, c := range cs.chunks {
		if c.SourceURL == "" || c.StorageID == "" {
			t.Errorf("chunk missing provenance: %+v", c)
		}
		if c.SourceURL == "https://c.example" {
			t.Error("body-less document should not produce chunks")
		}
	}
}

func TestRebuildReplacesPrevious(t *testing.T) {
	cs := &memChunkStore{}
	ix := New(splitter.New(1000, 200), &stubEmbedder{}, cs, nil)

	first := []store.Document{{SourceURL: "https://a.example", StorageID: "RES_1.md", Body: "alpha"}}
	if _, err := ix.Rebuild(context.Background(), first); err != nil {
		t.Fatal(err)
	}

	second := []store.Document{{SourceURL: "https://b.example", StorageID: "RES_2.md", Body: "beta"}}
	if _, err := ix.Rebuild(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	if len(cs.chunks) != 1 || cs.chunks[0].SourceURL != "https://b.example" {
		t.Errorf("rebuild did not replace previous contents: %+v", cs.chunks)
	}
}

func TestRebuildEmpty(t *testing.T) {
	cs := &memChunkStore{chunks: []Chunk{{Text: "stale"}}}
	ix := New(splitter.New(1000, 200), &stubEmbedder{}, cs, nil)

	n, err := ix.Rebuild(context.Background(), nil)
	if err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	if n != 0 {
		t.Errorf("Rebuild() = %d, want 0", n)
	}
}

func TestRebuildEmbedderFailure(t *testing.T) {
	ix := New(splitter.New(1000, 200), &stubEmbedder{err: errors.New("quota")}, &memChunkStore{}, nil)
	docs := []store.Document{{SourceURL: "https://a.example", StorageID: "RES_1.md", Body: "text"}}
	if _, err := ix.Rebuild(context.Background(), docs); err == nil {
		t.Error("expected error from failing embedder")
	}
}

func TestQuery(t *testing.T) {
	cs := &memChunkStore{chunks: []Chunk{
		{Text: "one", SourceURL: "https://a.example", StorageID: "RES_1.md"},
		{Text: "two", SourceURL: "https://b.example", StorageID: "RES_2.md"},
	}}
	ix := New(splitter.New(1000, 200), &stubEmbedder{}, cs, nil)

	chunks, err := ix.Query(context.Background(), "question", 1)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "one" {
		t.Errorf("Query() = %+v", chunks)
	}
}

func TestQueryEmbedderFailure(t *testing.T) {
	ix := New(splitter.New(1000, 200), &stubEmbedder{err: errors.New("down")}, &memChunkStore{}, nil)
	if _, err := ix.Query(context.Background(), "q", 5); err == nil {
		t.Error("expected error from failing embedder")
	}
}
