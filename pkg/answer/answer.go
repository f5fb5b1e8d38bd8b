// Package answer builds the grounded prompt from retrieved chunks,
// invokes the generation capability, and attributes sources.
package answer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/scoutly/scoutly/pkg/clients"
	"github.com/scoutly/scoutly/pkg/index"
)

// DefaultTopK is how many chunks ground the answer.
const DefaultTopK = 5

// FailureMessage replaces the answer when the generation capability
// fails. Callers can display it without special-casing.
const FailureMessage = "I could not generate an answer from the gathered sources. Please try asking again."

// Retriever is the slice of the index the generator needs.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]index.Chunk, error)
}

type Generator struct {
	LLM    clients.TextGenerator
	TopK   int
	Logger *slog.Logger
}

func New(llm clients.TextGenerator, topK int, logger *slog.Logger) *Generator {
	if topK < 1 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{LLM: llm, TopK: topK, Logger: logger}
}

const answerPromptTemplate = `You are a research assistant. Answer the question using only the context below, gathered from web sources. Be thorough but stay grounded: if the context does not cover part of the question, say so rather than inventing details.

Context:
%s

Question: %s

Answer in Markdown.`

// Answer retrieves the top chunks, generates a grounded answer, and
// returns it with the deduplicated source URLs in first-retrieval-rank
// order. Generation failure yields FailureMessage, never an error.
func (g *Generator) Answer(ctx context.Context, idx Retriever, question string) (string, []string) {
	prompt, sources, ok := g.prepare(ctx, idx, question)
	if !ok {
		return FailureMessage, sources
	}

	text, err := g.LLM.Complete(ctx, prompt)
	if err != nil {
		g.Logger.Error("answer generation failed", "error", err)
		return FailureMessage, sources
	}
	return text, sources
}

// AnswerStream yields answer fragments as they are generated, then a
// deterministic Sources trailer. The sequence is finite and cannot be
// restarted; a fresh retrieval starts a new one. Failures degrade to a
// FailureMessage fragment.
func (g *Generator) AnswerStream(ctx context.Context, idx Retriever, question string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		prompt, sources, ok := g.prepare(ctx, idx, question)
		if !ok {
			yield(FailureMessage, nil)
			return
		}

		failed := false
		for fragment, err := range g.LLM.Stream(ctx, prompt) {
			if err != nil {
				g.Logger.Error("answer streaming failed", "error", err)
				failed = true
				break
			}
			if !yield(fragment, nil) {
				return
			}
		}
		if failed {
			if !yield(FailureMessage, nil) {
				return
			}
		}

		if len(sources) > 0 {
			yield(sourcesTrailer(sources), nil)
		}
	}
}

// prepare runs retrieval and builds the prompt. ok is false when
// retrieval failed or found nothing to ground on.
func (g *Generator) prepare(ctx context.Context, idx Retriever, question string) (prompt string, sources []string, ok bool) {
	chunks, err := idx.Query(ctx, question, g.TopK)
	if err != nil {
		g.Logger.Error("retrieval for answer failed", "error", err)
		return "", nil, false
	}
	if len(chunks) == 0 {
		return "", nil, false
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	return fmt.Sprintf(answerPromptTemplate, strings.Join(texts, "\n\n"), question),
		sourcesFromChunks(chunks), true
}

// sourcesFromChunks dedupes chunk source URLs, order preserved by
// first retrieval rank.
func sourcesFromChunks(chunks []index.Chunk) []string {
	seen := make(map[string]bool, len(chunks))
	var sources []string
	for _, c := range chunks {
		if c.SourceURL == "" || seen[c.SourceURL] {
			continue
		}
		seen[c.SourceURL] = true
		sources = append(sources, c.SourceURL)
	}
	return sources
}

// sourcesTrailer renders the numbered source list appended after the
// streamed answer. URLs become Markdown links; anything else stays
// plain text.
func sourcesTrailer(sources []string) string {
	var b strings.Builder
	b.WriteString("\n\n**Sources:**\n")
	for i, src := range sources {
		if strings.HasPrefix(src, "http") {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, src, src)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, src)
		}
	}
	return b.String()
}
