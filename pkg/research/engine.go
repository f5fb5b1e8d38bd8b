// Package research contains the adaptive retrieval loop: plan, search,
// fetch, ingest, index, evaluate, and retry with narrower keywords
// until the context suffices or the iteration budget runs out.
package research

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/scoutly/scoutly/pkg/evaluate"
	"github.com/scoutly/scoutly/pkg/fetch"
	"github.com/scoutly/scoutly/pkg/search"
)

const (
	// DefaultMaxIterations caps retry rounds after the initial pass.
	DefaultMaxIterations = 3

	defaultInitialPerQuery = 8
	defaultRetryPerQuery   = 5
	defaultTopK            = 5

	// maxRetryQuerySet is how many keywords a retry round may search;
	// retries are targeted, not exploratory.
	maxRetryQuerySet = 2

	// pdfRawResults is how many raw hits each filetype:pdf query asks
	// for before filtering.
	pdfRawResults = 3
)

// Engine drives one research session. All capabilities arrive through
// Deps; nothing is ambient.
type Engine struct {
	planner   Planner
	searcher  search.Provider
	fetcher   fetch.Fetcher
	pdf       fetch.PdfFetcher
	store     ContentStore
	index     Indexer
	evaluator Evaluator
	answerer  Answerer

	maxIterations   int
	initialPerQuery int
	retryPerQuery   int
	topK            int

	Logger        *slog.Logger
	OnStateUpdate func(state State)
}

// Deps are the capabilities and knobs for one session. Pdf is
// optional; everything else is required.
type Deps struct {
	Planner   Planner
	Searcher  search.Provider
	Fetcher   fetch.Fetcher
	Pdf       fetch.PdfFetcher
	Store     ContentStore
	Index     Indexer
	Evaluator Evaluator
	Answerer  Answerer

	MaxIterations   int
	InitialPerQuery int
	RetryPerQuery   int
	TopK            int

	Logger *slog.Logger
}

// NewEngine validates that every required capability is present. A
// missing one is the single fatal condition and surfaces before the
// loop ever starts.
func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.Planner == nil:
		return nil, missingCapability("planner")
	case deps.Searcher == nil:
		return nil, missingCapability("search provider")
	case deps.Fetcher == nil:
		return nil, missingCapability("content fetcher")
	case deps.Store == nil:
		return nil, missingCapability("content store")
	case deps.Index == nil:
		return nil, missingCapability("embedding index")
	case deps.Evaluator == nil:
		return nil, missingCapability("sufficiency evaluator")
	case deps.Answerer == nil:
		return nil, missingCapability("answer generator")
	}

	e := &Engine{
		planner:         deps.Planner,
		searcher:        deps.Searcher,
		fetcher:         deps.Fetcher,
		pdf:             deps.Pdf,
		store:           deps.Store,
		index:           deps.Index,
		evaluator:       deps.Evaluator,
		answerer:        deps.Answerer,
		maxIterations:   deps.MaxIterations,
		initialPerQuery: deps.InitialPerQuery,
		retryPerQuery:   deps.RetryPerQuery,
		topK:            deps.TopK,
		Logger:          deps.Logger,
	}
	if e.maxIterations < 1 {
		e.maxIterations = DefaultMaxIterations
	}
	if e.initialPerQuery < 1 {
		e.initialPerQuery = defaultInitialPerQuery
	}
	if e.retryPerQuery < 1 {
		e.retryPerQuery = defaultRetryPerQuery
	}
	if e.topK < 1 {
		e.topK = defaultTopK
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	return e, nil
}

// Run executes the full session and returns the generated answer with
// its sources.
func (e *Engine) Run(ctx context.Context, question string) (*Result, error) {
	state, err := e.gather(ctx, question)
	if err != nil {
		return nil, err
	}

	e.setPhase(state, PhaseAnswering)
	text, sources := e.answerer.Answer(ctx, e.index, question)
	e.setPhase(state, PhaseDone)

	return &Result{
		Answer:  text,
		Sources: sources,
		State:   *state,
	}, nil
}

// RunStream executes the session and returns the answer as a stream of
// fragments ending in a Sources trailer, plus the final session state.
func (e *Engine) RunStream(ctx context.Context, question string) (iter.Seq2[string, error], *State, error) {
	state, err := e.gather(ctx, question)
	if err != nil {
		return nil, nil, err
	}

	e.setPhase(state, PhaseAnswering)
	stream := e.answerer.AnswerStream(ctx, e.index, question)

	return func(yield func(string, error) bool) {
		for fragment, err := range stream {
			if !yield(fragment, err) {
				return
			}
		}
		e.setPhase(state, PhaseDone)
	}, state, nil
}

// gather runs the adaptive loop up to the answering decision: the
// store and index hold everything retrieval found, and state records
// how the loop ended.
func (e *Engine) gather(ctx context.Context, question string) (*State, error) {
	state := &State{
		Question:      question,
		Phase:         PhasePlanning,
		MaxIterations: e.maxIterations,
	}
	e.notify(state)

	plan := e.planner.Plan(ctx, question)
	state.Plan = plan
	if plan.Degraded {
		e.Logger.Warn("planning degraded to heuristic keywords", "keywords", plan.Keywords)
	}
	e.Logger.Info("research plan ready",
		"keywords", plan.Keywords,
		"search_type", plan.SearchType,
		"max_pages", plan.MaxPages)

	keywords := plan.Keywords
	perQuery := e.initialPerQuery

	for {
		e.runRound(ctx, state, keywords, plan.SearchType, perQuery)

		e.setPhase(state, PhaseEvaluating)
		retrieved := e.retrieveContext(ctx, question)
		verdict := e.evaluator.Evaluate(ctx, question, retrieved)
		state.LastVerdict = &verdict
		if verdict.Degraded {
			state.EvaluationsDegraded++
		}
		e.Logger.Info("sufficiency verdict",
			"sufficient", verdict.Sufficient,
			"reason", verdict.Reason,
			"iteration", state.Iteration)

		if verdict.Sufficient || state.Iteration >= e.maxIterations {
			break
		}

		retry := e.retryKeywords(state, &verdict)
		if len(retry) == 0 {
			e.Logger.Info("no retry keywords available, accepting current context")
			break
		}

		e.setPhase(state, PhaseRetrying)
		state.Iteration++
		keywords = retry
		perQuery = e.retryPerQuery
		e.Logger.Info("retrying with narrower search",
			"iteration", state.Iteration,
			"keywords", keywords)
	}

	return state, nil
}

// runRound performs one search → fetch → ingest → index pass into the
// same session store. Per-item failures are swallowed; only an
// unreachable index surfaces, and then only as a log, since a later
// round may still succeed.
func (e *Engine) runRound(ctx context.Context, state *State, keywords []string, searchType search.Type, perQuery int) {
	e.setPhase(state, PhaseSearching)
	hits, elapsed, err := e.searcher.Search(ctx, keywords, searchType, perQuery)
	if err != nil {
		e.Logger.Warn("search round failed", "error", err)
	}
	e.Logger.Info("search complete", "hits", len(hits), "elapsed", elapsed)

	e.setPhase(state, PhaseFetching)
	if len(hits) > 0 {
		urls := make([]string, len(hits))
		for i, h := range hits {
			urls[i] = h.URL
		}
		texts := e.fetcher.FetchAndExtract(ctx, urls)

		failed := 0
		for _, u := range urls {
			if texts[u] == "" {
				failed++
			}
		}
		state.FetchFailures += failed

		added := e.store.Ingest(hits, texts)
		e.Logger.Info("fetch round complete",
			"fetched", len(urls)-failed,
			"failed", failed,
			"ingested", len(added))
	}

	// One-shot PDF enrichment on the first retry only.
	if state.Iteration == 1 && !state.PdfIngested && e.pdf != nil && len(keywords) > 0 {
		if e.enrichWithPDF(ctx, keywords[0], searchType) {
			state.PdfIngested = true
		}
	}

	docs := e.store.AllDocuments()
	state.Documents = len(docs)

	e.setPhase(state, PhaseIndexing)
	chunks, err := e.index.Rebuild(ctx, docs)
	if err != nil {
		e.Logger.Error("index rebuild failed", "error", err)
		return
	}
	state.Chunks = chunks
}

// enrichWithPDF searches "<keyword> filetype:pdf", downloads the first
// plausible hit, and ingests it. Capped to one document; every failure
// is swallowed.
func (e *Engine) enrichWithPDF(ctx context.Context, keyword string, searchType search.Type) bool {
	hits, _, err := e.searcher.Search(ctx, []string{keyword + " filetype:pdf"}, searchType, pdfRawResults)
	if err != nil {
		e.Logger.Warn("pdf discovery search failed", "error", err)
		return false
	}

	for _, hit := range hits {
		lower := strings.ToLower(hit.URL)
		if !strings.HasSuffix(lower, ".pdf") && !strings.Contains(lower, "pdf") {
			continue
		}

		data, contentType, err := e.pdf.Download(ctx, hit.URL)
		if err != nil {
			e.Logger.Warn("pdf download failed", "url", hit.URL, "error", err)
			continue
		}

		doc, err := e.store.IngestPDF(ctx, hit.URL, data, contentType)
		if err != nil {
			e.Logger.Warn("pdf ingestion failed", "url", hit.URL, "error", err)
			continue
		}
		if doc != nil {
			e.Logger.Info("pdf ingested", "url", hit.URL, "storage_id", doc.StorageID)
			return true
		}
	}
	return false
}

// retrieveContext concatenates the top-k retrieved chunks for the
// evaluator. Retrieval failure degrades to an empty context.
func (e *Engine) retrieveContext(ctx context.Context, question string) string {
	chunks, err := e.index.Query(ctx, question, e.topK)
	if err != nil {
		e.Logger.Warn("retrieval for evaluation failed", "error", err)
		return ""
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n")
}

// retryKeywords selects the next round's keywords: the verdict's
// suggestions first, then the plan's fallback, which is usable only
// once per session. The result is capped at maxRetryQuerySet.
func (e *Engine) retryKeywords(state *State, verdict *evaluate.Verdict) []string {
	keywords := verdict.RetryKeywords
	if len(keywords) == 0 && !state.PlanRetryUsed && state.Plan != nil {
		keywords = state.Plan.RetryKeywords
		if len(keywords) > 0 {
			state.PlanRetryUsed = true
		}
	}
	if len(keywords) > maxRetryQuerySet {
		keywords = keywords[:maxRetryQuerySet]
	}
	return keywords
}

func (e *Engine) setPhase(state *State, phase Phase) {
	state.Phase = phase
	e.notify(state)
}

func (e *Engine) notify(state *State) {
	if e.OnStateUpdate != nil {
		e.OnStateUpdate(*state)
	}
}

// Index exposes the session index so callers can keep querying it
// while the session lives (the streaming CLI does).
func (e *Engine) Index() Indexer {
	return e.index
}
