package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lmoreau/paperquery/internal/core/domain"
	"github.com/lmoreau/paperquery/internal/core/ports"
)

type generatorFake struct {
	answer string
	err    error

	generateCalls   int
	synthesisCalls  int
	comparisonCalls int

	groups   []ports.DocumentGroup
	section  domain.Section
	authors  []string
	byAuthor map[string][]domain.Chunk
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _ string, _ []domain.Chunk) (string, error) {
	f.generateCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *generatorFake) SynthesizeLiterature(_ context.Context, _ string, groups []ports.DocumentGroup, section domain.Section) (string, error) {
	f.synthesisCalls++
	f.groups = groups
	f.section = section
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *generatorFake) CompareAuthors(_ context.Context, _ string, authors []string, byAuthor map[string][]domain.Chunk) (string, error) {
	f.comparisonCalls++
	f.authors = authors
	f.byAuthor = byAuthor
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type metricsFake struct {
	observed    int
	noContext   int
	fallbacks   int
	lastIntent  domain.Intent
	lastSources int
}

func (f *metricsFake) ObserveQuery(intent domain.Intent, sources int, _ time.Duration) {
	f.observed++
	f.lastIntent = intent
	f.lastSources = sources
}
func (f *metricsFake) IncNoContext(domain.Intent) { f.noContext++ }
func (f *metricsFake) IncComparisonFallback()     { f.fallbacks++ }

type queryHarness struct {
	index     *authorIndexFake
	vector    *vectorFake
	generator *generatorFake
	metrics   *metricsFake
	uc        *QueryUseCase
}

func newQueryHarness(hits []domain.EngineHit, known map[string]bool) *queryHarness {
	index := &authorIndexFake{known: known}
	vector := &vectorFake{count: 100, hits: hits}
	generator := &generatorFake{answer: "generated answer"}
	metrics := &metricsFake{}
	uc := NewQueryUseCase(
		NewEntityDetector(index),
		NewRetriever(&embedderFake{}, vector),
		NewReranker(&scorerFake{enabled: false}),
		generator,
		metrics,
	)
	return &queryHarness{index: index, vector: vector, generator: generator, metrics: metrics, uc: uc}
}

func TestAnswerRejectsShortQuestion(t *testing.T) {
	h := newQueryHarness(nil, nil)

	_, err := h.uc.Answer(context.Background(), domain.QueryRequest{Question: "  hi  "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("Answer() error = %v, want invalid input", err)
	}
}

func TestAnswerStandardFlow(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{
		hit("doc-1", "c1", "smith", "", 0.1),
		hit("doc-1", "c2", "smith", "", 0.2),
		hit("doc-2", "c3", "jones", "", 0.3),
	}, nil)

	resp, err := h.uc.Answer(context.Background(), domain.QueryRequest{Question: "what is the main claim?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.Answer != "generated answer" {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %d, want 2 after per-document dedup", len(resp.Sources))
	}
	if resp.Sources[0].DocumentID != "doc-1" || resp.Sources[1].DocumentID != "doc-2" {
		t.Fatalf("source order not first-seen: %v", resp.Sources)
	}
	if resp.ProcessingTimeMS < 0 {
		t.Fatalf("processing time = %d, want >= 0", resp.ProcessingTimeMS)
	}
	if h.vector.limit != defaultTopK*standardFetchFactor {
		t.Fatalf("engine limit = %d, want %d", h.vector.limit, defaultTopK*standardFetchFactor)
	}
	if h.metrics.observed != 1 || h.metrics.lastIntent != domain.IntentStandard || h.metrics.lastSources != 2 {
		t.Fatalf("metrics not observed: %+v", h.metrics)
	}
}

func TestAnswerStandardFetchCap(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{hit("doc-1", "c1", "", "", 0.1)}, nil)

	_, err := h.uc.Answer(context.Background(), domain.QueryRequest{Question: "what is the main claim?", TopK: 100})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if h.vector.limit != standardFetchCap {
		t.Fatalf("engine limit = %d, want cap %d", h.vector.limit, standardFetchCap)
	}
}

func TestAnswerStandardNoContext(t *testing.T) {
	h := newQueryHarness(nil, nil)

	resp, err := h.uc.Answer(context.Background(), domain.QueryRequest{Question: "what is the main claim?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.Answer != noContextAnswer {
		t.Fatalf("answer = %q, want fixed no-context text", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("sources = %v, want empty", resp.Sources)
	}
	if h.generator.generateCalls != 0 {
		t.Fatalf("generator called with no context")
	}
	if h.metrics.noContext != 1 {
		t.Fatalf("no-context metric = %d, want 1", h.metrics.noContext)
	}
}

func TestAnswerGenerationErrorPropagates(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{hit("doc-1", "c1", "", "", 0.1)}, nil)
	h.generator.err = errors.New("model unavailable")

	_, err := h.uc.Answer(context.Background(), domain.QueryRequest{Question: "what is the main claim?"})
	if err == nil {
		t.Fatalf("expected generation error to propagate")
	}
}

func TestAnswerExplicitAuthorFilterWins(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{
		hit("doc-1", "c1", "J. Smith", "", 0.1),
		hit("doc-2", "c2", "B. Jones", "", 0.2),
	}, map[string]bool{"jones": true})

	resp, err := h.uc.Answer(context.Background(), domain.QueryRequest{
		Question: "what did they measure in the trial?",
		Authors:  []string{" Smith "},
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].DocumentID != "doc-1" {
		t.Fatalf("sources = %v, want explicit author filter applied", resp.Sources)
	}
	if len(h.index.lookups) != 0 {
		t.Fatalf("author auto-detection ran despite explicit filter: %v", h.index.lookups)
	}
}

func TestAnswerSynthesisFlow(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{
		hit("doc-1", "c1", "smith", domain.SectionMethods, 0.1),
		hit("doc-2", "c2", "jones", domain.SectionMethods, 0.2),
		hit("doc-1", "c3", "smith", domain.SectionMethods, 0.3),
	}, nil)

	resp, err := h.uc.Answer(context.Background(), domain.QueryRequest{
		Question: "Give me a literature review of the measurement methods",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if h.generator.synthesisCalls != 1 {
		t.Fatalf("synthesis calls = %d, want 1", h.generator.synthesisCalls)
	}
	if len(h.generator.groups) != 2 {
		t.Fatalf("document groups = %d, want 2", len(h.generator.groups))
	}
	if h.generator.groups[0].DocumentID != "doc-1" || len(h.generator.groups[0].Chunks) != 2 {
		t.Fatalf("grouping lost chunks: %+v", h.generator.groups)
	}
	if h.generator.section != domain.SectionMethods {
		t.Fatalf("section = %q, want methods", h.generator.section)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(resp.Sources))
	}
}

func TestAnswerSynthesisPoolSize(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{hit("doc-1", "c1", "", "", 0.1)}, nil)

	_, err := h.uc.Answer(context.Background(), domain.QueryRequest{
		Question: "Provide an overview across all the papers",
		TopK:     3,
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if h.vector.limit != synthesisPoolSize {
		t.Fatalf("engine limit = %d, want fixed pool %d", h.vector.limit, synthesisPoolSize)
	}
}

func TestAnswerComparisonFlow(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{
		hit("doc-1", "c1", "J. Smith", "", 0.1),
		hit("doc-2", "c2", "B. Jones", "", 0.2),
	}, map[string]bool{"smith": true, "jones": true})

	resp, err := h.uc.Answer(context.Background(), domain.QueryRequest{
		Question: "Compare Smith and Jones on the trial design",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if h.generator.comparisonCalls != 1 {
		t.Fatalf("comparison calls = %d, want 1", h.generator.comparisonCalls)
	}
	if len(h.generator.authors) != 2 {
		t.Fatalf("authors = %v, want 2", h.generator.authors)
	}
	if len(h.generator.byAuthor["smith"]) != 1 || len(h.generator.byAuthor["jones"]) != 1 {
		t.Fatalf("per-author chunks = %v", h.generator.byAuthor)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(resp.Sources))
	}
	if h.metrics.lastIntent != domain.IntentComparison {
		t.Fatalf("observed intent = %s, want comparison", h.metrics.lastIntent)
	}
}

func TestAnswerComparisonFallbackToStandard(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{
		hit("doc-1", "c1", "somebody", "", 0.1),
	}, map[string]bool{"smith": true})

	resp, err := h.uc.Answer(context.Background(), domain.QueryRequest{
		Question: "Compare the two frameworks in detail",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if h.metrics.fallbacks != 1 {
		t.Fatalf("fallback metric = %d, want 1", h.metrics.fallbacks)
	}
	if h.generator.comparisonCalls != 0 || h.generator.generateCalls != 1 {
		t.Fatalf("fallback did not take the standard path: %+v", h.generator)
	}
	if resp.ProcessingTimeMS < 0 {
		t.Fatalf("processing time = %d, want >= 0", resp.ProcessingTimeMS)
	}
}

func TestAnswerComparisonNoDocuments(t *testing.T) {
	h := newQueryHarness([]domain.EngineHit{
		hit("doc-1", "c1", "someone else entirely", "", 0.1),
	}, map[string]bool{"smith": true, "jones": true})

	resp, err := h.uc.Answer(context.Background(), domain.QueryRequest{
		Question: "Compare Smith and Jones on the trial design",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.Answer != noComparisonAnswer {
		t.Fatalf("answer = %q, want fixed no-comparison text", resp.Answer)
	}
	if h.generator.comparisonCalls != 0 {
		t.Fatalf("generator called with no per-author context")
	}
}
