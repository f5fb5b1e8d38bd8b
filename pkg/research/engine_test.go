package research

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/scoutly/scoutly/pkg/answer"
	"github.com/scoutly/scoutly/pkg/evaluate"
	"github.com/scoutly/scoutly/pkg/index"
	"github.com/scoutly/scoutly/pkg/planner"
	"github.com/scoutly/scoutly/pkg/search"
	"github.com/scoutly/scoutly/pkg/store"
)

type stubPlanner struct {
	plan *planner.Plan
}

func (s *stubPlanner) Plan(ctx context.Context, question string) *planner.Plan {
	return s.plan
}

type searchCall struct {
	keywords []string
	perQuery int
}

// stubSearcher records every call and serves hits keyed by keyword, so
// each round can surface distinct URLs.
type stubSearcher struct {
	calls []searchCall
	hits  map[string][]search.Hit
}

func (s *stubSearcher) Search(ctx context.Context, keywords []string, searchType search.Type, resultsPerQuery int) ([]search.Hit, time.Duration, error) {
	s.calls = append(s.calls, searchCall{keywords: keywords, perQuery: resultsPerQuery})
	var all []search.Hit
	for _, kw := range keywords {
		all = append(all, s.hits[kw]...)
	}
	return search.Dedup(all), 0, nil
}

// stubFetcher succeeds for every URL except those listed in failing.
type stubFetcher struct {
	failing map[string]bool
}

func (s *stubFetcher) FetchAndExtract(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	for _, u := range urls {
		if s.failing[u] {
			out[u] = ""
			continue
		}
		out[u] = "extracted text of " + u
	}
	return out
}

type stubPdfFetcher struct {
	calls int
	err   error
}

func (s *stubPdfFetcher) Download(ctx context.Context, url string) ([]byte, string, error) {
	s.calls++
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte("%PDF-1.4"), "application/pdf", nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	return "pdf text", nil
}

// stubIndexer indexes one chunk per document and serves them all back
// on Query.
type stubIndexer struct {
	chunks   []index.Chunk
	rebuilds int
}

func (s *stubIndexer) Rebuild(ctx context.Context, docs []store.Document) (int, error) {
	s.rebuilds++
	s.chunks = s.chunks[:0]
	for _, d := range docs {
		s.chunks = append(s.chunks, index.Chunk{
			Text:      d.Body,
			SourceURL: d.SourceURL,
			StorageID: d.StorageID,
		})
	}
	return len(s.chunks), nil
}

func (s *stubIndexer) Query(ctx context.Context, text string, k int) ([]index.Chunk, error) {
	if k > len(s.chunks) {
		k = len(s.chunks)
	}
	return s.chunks[:k], nil
}

// stubEvaluator hands out verdicts in sequence, repeating the last one.
type stubEvaluator struct {
	verdicts []evaluate.Verdict
	calls    int
}

func (s *stubEvaluator) Evaluate(ctx context.Context, question, retrieved string) evaluate.Verdict {
	i := s.calls
	s.calls++
	if i >= len(s.verdicts) {
		i = len(s.verdicts) - 1
	}
	return s.verdicts[i]
}

type stubAnswerer struct{}

func (stubAnswerer) Answer(ctx context.Context, idx answer.Retriever, question string) (string, []string) {
	chunks, err := idx.Query(ctx, question, 5)
	if err != nil {
		return answer.FailureMessage, nil
	}
	var sources []string
	seen := make(map[string]bool)
	for _, c := range chunks {
		if c.SourceURL != "" && !seen[c.SourceURL] {
			seen[c.SourceURL] = true
			sources = append(sources, c.SourceURL)
		}
	}
	return "final answer", sources
}

func (a stubAnswerer) AnswerStream(ctx context.Context, idx answer.Retriever, question string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, _ := a.Answer(ctx, idx, question)
		for _, part := range strings.SplitAfter(text, " ") {
			if !yield(part, nil) {
				return
			}
		}
	}
}

func hitsFor(prefix string, n int) []search.Hit {
	hits := make([]search.Hit, n)
	for i := range hits {
		hits[i] = search.Hit{
			Title: fmt.Sprintf("%s result %d", prefix, i+1),
			URL:   fmt.Sprintf("https://%s.example/page%d", prefix, i+1),
		}
	}
	return hits
}

func newTestDeps(t *testing.T, searcher *stubSearcher, evaluator *stubEvaluator, plan *planner.Plan) Deps {
	t.Helper()
	st, err := store.New(t.TempDir(), stubExtractor{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return Deps{
		Planner:   &stubPlanner{plan: plan},
		Searcher:  searcher,
		Fetcher:   &stubFetcher{},
		Store:     st,
		Index:     &stubIndexer{},
		Evaluator: evaluator,
		Answerer:  stubAnswerer{},
	}
}

func TestNewEngineMissingCapability(t *testing.T) {
	searcher := &stubSearcher{}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: true}}}
	plan := &planner.Plan{Keywords: []string{"k"}}

	mutations := []struct {
		name string
		mut  func(d *Deps)
	}{
		{"planner", func(d *Deps) { d.Planner = nil }},
		{"searcher", func(d *Deps) { d.Searcher = nil }},
		{"fetcher", func(d *Deps) { d.Fetcher = nil }},
		{"store", func(d *Deps) { d.Store = nil }},
		{"index", func(d *Deps) { d.Index = nil }},
		{"evaluator", func(d *Deps) { d.Evaluator = nil }},
		{"answerer", func(d *Deps) { d.Answerer = nil }},
	}
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestDeps(t, searcher, evaluator, plan)
			tt.mut(&deps)
			if _, err := NewEngine(deps); !errors.Is(err, ErrCapabilityUnavailable) {
				t.Errorf("NewEngine() error = %v, want ErrCapabilityUnavailable", err)
			}
		})
	}
}

func TestNewEngineOptionalPdf(t *testing.T) {
	deps := newTestDeps(t, &stubSearcher{}, &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: true}}}, &planner.Plan{Keywords: []string{"k"}})
	if _, err := NewEngine(deps); err != nil {
		t.Errorf("pdf fetcher should be optional, got %v", err)
	}
}

func TestRunSufficientFirstPass(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{
		"solar power": hitsFor("solar", 3),
	}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: true, Reason: "covered"}}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"solar power"}})

	e, err := NewEngine(deps)
	if err != nil {
		t.Fatal(err)
	}
	result, err := e.Run(context.Background(), "how does solar power work")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Answer != "final answer" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.State.Iteration != 0 {
		t.Errorf("Iteration = %d, want 0 (no retry)", result.State.Iteration)
	}
	if len(searcher.calls) != 1 {
		t.Errorf("searcher called %d times, want 1", len(searcher.calls))
	}
	if searcher.calls[0].perQuery != defaultInitialPerQuery {
		t.Errorf("initial perQuery = %d, want %d", searcher.calls[0].perQuery, defaultInitialPerQuery)
	}
	if result.State.Documents != 3 {
		t.Errorf("Documents = %d, want 3", result.State.Documents)
	}

	// Every cited source must come from an ingested document.
	ingested := make(map[string]bool)
	for _, d := range deps.Store.AllDocuments() {
		ingested[d.SourceURL] = true
	}
	for _, src := range result.Sources {
		if !ingested[src] {
			t.Errorf("source %q was never ingested", src)
		}
	}
	if result.State.Phase != PhaseDone {
		t.Errorf("Phase = %v, want done", result.State.Phase)
	}
}

func TestRunRetriesUntilBudget(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{
		"broad":   hitsFor("broad", 2),
		"narrow1": hitsFor("narrow1", 1),
		"narrow2": hitsFor("narrow2", 1),
	}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{
		{Sufficient: false, RetryKeywords: []string{"narrow1", "narrow2"}},
	}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"broad"}})

	e, err := NewEngine(deps)
	if err != nil {
		t.Fatal(err)
	}
	result, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}

	// Initial pass plus retries up to the budget, never beyond.
	if result.State.Iteration != DefaultMaxIterations {
		t.Errorf("Iteration = %d, want %d", result.State.Iteration, DefaultMaxIterations)
	}
	wantRounds := DefaultMaxIterations + 1
	if len(searcher.calls) != wantRounds {
		t.Fatalf("searcher called %d times, want %d", len(searcher.calls), wantRounds)
	}

	// Retry rounds narrow the per-query budget and the keyword set.
	for i, call := range searcher.calls[1:] {
		if call.perQuery != defaultRetryPerQuery {
			t.Errorf("retry round %d perQuery = %d, want %d", i+1, call.perQuery, defaultRetryPerQuery)
		}
		if len(call.keywords) > maxRetryQuerySet {
			t.Errorf("retry round %d used %d keywords, max %d", i+1, len(call.keywords), maxRetryQuerySet)
		}
	}

	if evaluator.calls != wantRounds {
		t.Errorf("evaluator called %d times, want once per round (%d)", evaluator.calls, wantRounds)
	}
}

func TestRunRetryKeywordsCapped(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{"k": hitsFor("k", 1)}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{
		{Sufficient: false, RetryKeywords: []string{"r1", "r2", "r3"}},
		{Sufficient: true},
	}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"k"}})

	e, _ := NewEngine(deps)
	if _, err := e.Run(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}

	if len(searcher.calls) != 2 {
		t.Fatalf("searcher called %d times, want 2", len(searcher.calls))
	}
	got := searcher.calls[1].keywords
	if len(got) != 2 || got[0] != "r1" || got[1] != "r2" {
		t.Errorf("retry keywords = %v, want first two suggestions", got)
	}
}

func TestRunPlanRetryUsedOnce(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{
		"initial":  hitsFor("initial", 1),
		"planned1": hitsFor("planned1", 1),
	}}
	// The evaluator never suggests keywords, so the plan's fallback is
	// the only retry source, and it works exactly once.
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: false}}}
	plan := &planner.Plan{
		Keywords:      []string{"initial"},
		RetryKeywords: []string{"planned1"},
	}
	deps := newTestDeps(t, searcher, evaluator, plan)

	e, _ := NewEngine(deps)
	result, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}

	// One initial round, one plan-fueled retry, then nothing left.
	if len(searcher.calls) != 2 {
		t.Fatalf("searcher called %d times, want 2", len(searcher.calls))
	}
	if got := searcher.calls[1].keywords; len(got) != 1 || got[0] != "planned1" {
		t.Errorf("retry keywords = %v, want plan fallback", got)
	}
	if !result.State.PlanRetryUsed {
		t.Error("PlanRetryUsed not recorded")
	}
	if result.State.Iteration != 1 {
		t.Errorf("Iteration = %d, want 1", result.State.Iteration)
	}
}

func TestRunPdfOneShot(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{
		"topic":              hitsFor("topic", 1),
		"deeper":             hitsFor("deeper", 1),
		"deeper filetype:pdf": {{Title: "paper", URL: "https://papers.example/study.pdf"}},
	}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{
		{Sufficient: false, RetryKeywords: []string{"deeper"}},
		{Sufficient: false, RetryKeywords: []string{"deeper"}},
		{Sufficient: true},
	}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"topic"}})
	pdf := &stubPdfFetcher{}
	deps.Pdf = pdf

	e, _ := NewEngine(deps)
	result, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}

	if !result.State.PdfIngested {
		t.Error("expected a pdf to be ingested")
	}
	if pdf.calls != 1 {
		t.Errorf("pdf fetcher called %d times, want exactly 1", pdf.calls)
	}

	var pdfDocs int
	for _, d := range deps.Store.AllDocuments() {
		if d.Kind == store.KindPDF {
			pdfDocs++
		}
	}
	if pdfDocs != 1 {
		t.Errorf("store holds %d pdf docs, want 1", pdfDocs)
	}
}

func TestRunNoPdfOnInitialPass(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{"k": hitsFor("k", 1)}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: true}}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"k"}})
	pdf := &stubPdfFetcher{}
	deps.Pdf = pdf

	e, _ := NewEngine(deps)
	if _, err := e.Run(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if pdf.calls != 0 {
		t.Errorf("pdf fetcher called %d times on a no-retry session, want 0", pdf.calls)
	}
}

func TestRunCountsFetchFailures(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{"k": hitsFor("k", 3)}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: true}}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"k"}})
	deps.Fetcher = &stubFetcher{failing: map[string]bool{"https://k.example/page2": true}}

	e, _ := NewEngine(deps)
	result, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if result.State.FetchFailures != 1 {
		t.Errorf("FetchFailures = %d, want 1", result.State.FetchFailures)
	}
	if result.State.Documents != 2 {
		t.Errorf("Documents = %d, want 2", result.State.Documents)
	}
}

func TestRunStream(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{"k": hitsFor("k", 2)}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: true}}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"k"}})

	e, _ := NewEngine(deps)
	stream, state, err := e.RunStream(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}

	var full strings.Builder
	for fragment, err := range stream {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		full.WriteString(fragment)
	}

	if full.String() != "final answer" {
		t.Errorf("streamed answer = %q", full.String())
	}
	if state.Phase != PhaseDone {
		t.Errorf("Phase after drain = %v, want done", state.Phase)
	}
}

func TestRunStateUpdates(t *testing.T) {
	searcher := &stubSearcher{hits: map[string][]search.Hit{"k": hitsFor("k", 1)}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: true}}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"k"}})

	e, _ := NewEngine(deps)
	var phases []Phase
	e.OnStateUpdate = func(s State) { phases = append(phases, s.Phase) }

	if _, err := e.Run(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}

	want := []Phase{PhasePlanning, PhaseSearching, PhaseFetching, PhaseIndexing, PhaseEvaluating, PhaseAnswering, PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("got phases %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %v, want %v", i, phases[i], want[i])
		}
	}
}

func TestRunDegradedEvaluatorStops(t *testing.T) {
	// A fail-open verdict is sufficient, so a dead evaluator cannot spin
	// the loop.
	searcher := &stubSearcher{hits: map[string][]search.Hit{"k": hitsFor("k", 1)}}
	evaluator := &stubEvaluator{verdicts: []evaluate.Verdict{{Sufficient: true, Degraded: true}}}
	deps := newTestDeps(t, searcher, evaluator, &planner.Plan{Keywords: []string{"k"}})

	e, _ := NewEngine(deps)
	result, err := e.Run(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(searcher.calls) != 1 {
		t.Errorf("searcher called %d times, want 1", len(searcher.calls))
	}
	if result.State.EvaluationsDegraded != 1 {
		t.Errorf("EvaluationsDegraded = %d, want 1", result.State.EvaluationsDegraded)
	}
}
