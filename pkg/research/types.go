package research

import (
	"context"
	"iter"

	"github.com/scoutly/scoutly/pkg/answer"
	"github.com/scoutly/scoutly/pkg/evaluate"
	"github.com/scoutly/scoutly/pkg/index"
	"github.com/scoutly/scoutly/pkg/planner"
	"github.com/scoutly/scoutly/pkg/search"
	"github.com/scoutly/scoutly/pkg/store"
)

// Phase is the controller's position in the research state machine.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseSearching  Phase = "searching"
	PhaseFetching   Phase = "fetching"
	PhaseIndexing   Phase = "indexing"
	PhaseEvaluating Phase = "evaluating"
	PhaseRetrying   Phase = "retrying"
	PhaseAnswering  Phase = "answering"
	PhaseDone       Phase = "done"
)

// State is the controller's mutable session state. It lives for one
// question and is discarded after the final answer.
type State struct {
	Question      string        `json:"question"`
	Plan          *planner.Plan `json:"plan,omitempty"`
	Phase         Phase         `json:"phase"`
	Iteration     int           `json:"iteration"`
	MaxIterations int           `json:"max_iterations"`

	Documents     int  `json:"documents"`
	Chunks        int  `json:"chunks"`
	FetchFailures int  `json:"fetch_failures"`
	PdfIngested   bool `json:"pdf_ingested"`

	PlanRetryUsed       bool `json:"plan_retry_used"`
	EvaluationsDegraded int  `json:"evaluations_degraded"`

	LastVerdict *evaluate.Verdict `json:"last_verdict,omitempty"`
}

// Result is the outcome of one research session.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	State   State    `json:"state"`
}

// Planner produces the search strategy; it must not fail outward.
type Planner interface {
	Plan(ctx context.Context, question string) *planner.Plan
}

// Evaluator judges retrieved context against the question.
type Evaluator interface {
	Evaluate(ctx context.Context, question, retrieved string) evaluate.Verdict
}

// Indexer is the session knowledge-base index, rebuilt from the
// cumulative store every iteration.
type Indexer interface {
	Rebuild(ctx context.Context, docs []store.Document) (int, error)
	Query(ctx context.Context, text string, k int) ([]index.Chunk, error)
}

// Answerer produces the final grounded answer.
type Answerer interface {
	Answer(ctx context.Context, idx answer.Retriever, question string) (string, []string)
	AnswerStream(ctx context.Context, idx answer.Retriever, question string) iter.Seq2[string, error]
}

// ContentStore is the session document store.
type ContentStore interface {
	Ingest(hits []search.Hit, texts map[string]string) []store.Document
	IngestPDF(ctx context.Context, url string, data []byte, contentType string) (*store.Document, error)
	AllDocuments() []store.Document
}
