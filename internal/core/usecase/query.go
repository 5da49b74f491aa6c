package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lmoreau/paperquery/internal/core/domain"
	"github.com/lmoreau/paperquery/internal/core/ports"
)

const (
	defaultTopK       = 5
	maxTopK           = 20
	minQuestionLength = 3

	standardFetchFactor = 3
	standardFetchCap    = 30
	synthesisPoolSize   = 50
	synthesisKeepSize   = 30
	comparisonPerAuthor = 15
)

const (
	noContextAnswer    = "No relevant information was found in the indexed documents to answer this question."
	noComparisonAnswer = "No documents were found for the mentioned authors."
)

// QueryMetrics is the slice of instrumentation the orchestrator feeds.
type QueryMetrics interface {
	ObserveQuery(intent domain.Intent, sources int, duration time.Duration)
	IncNoContext(intent domain.Intent)
	IncComparisonFallback()
}

type nopMetrics struct{}

func (nopMetrics) ObserveQuery(domain.Intent, int, time.Duration) {}
func (nopMetrics) IncNoContext(domain.Intent)                    {}
func (nopMetrics) IncComparisonFallback()                        {}

// QueryUseCase orchestrates one question end to end: classify the
// intent, compose filters, run the matching retrieval strategy and
// assemble the deduplicated response. Transitions are one-shot; the
// only fallback is comparison -> standard when fewer than two author
// names validate against the corpus.
type QueryUseCase struct {
	detector  *EntityDetector
	retriever *Retriever
	reranker  *Reranker
	generator ports.AnswerGenerator
	metrics   QueryMetrics
}

func NewQueryUseCase(
	detector *EntityDetector,
	retriever *Retriever,
	reranker *Reranker,
	generator ports.AnswerGenerator,
	metrics QueryMetrics,
) *QueryUseCase {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &QueryUseCase{
		detector:  detector,
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		metrics:   metrics,
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if len([]rune(question)) < minQuestionLength {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate question",
			fmt.Errorf("question must be at least %d characters", minQuestionLength))
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	intent := uc.detector.Classify(question)
	filter := baseFilter(req)
	section := uc.detector.DetectSection(question)
	if section != "" {
		filter.Section = section
	}

	slog.Info("query_received",
		"intent", intent,
		"top_k", topK,
		"has_year_filter", !filter.Years.IsZero(),
		"has_author_filter", filter.Authors != "",
		"section_filter", string(filter.Section),
	)

	var (
		resp *domain.QueryResponse
		err  error
	)
	switch intent {
	case domain.IntentComparison:
		resp, err = uc.answerComparison(ctx, question, topK, filter, start)
	case domain.IntentSynthesis:
		resp, err = uc.answerSynthesis(ctx, question, filter, section, start)
	default:
		resp, err = uc.answerStandard(ctx, question, topK, filter, start)
	}
	if err != nil {
		return nil, err
	}

	uc.metrics.ObserveQuery(intent, len(resp.Sources), time.Since(start))
	slog.Info("query_completed",
		"intent", intent,
		"sources", len(resp.Sources),
		"processing_time_ms", resp.ProcessingTimeMS,
	)
	return resp, nil
}

// baseFilter lifts the explicit request fields into a filter. Explicit
// fields always win over auto-detection; the request's author list
// collapses to its first non-empty entry because the filter model is a
// single engine-opaque substring.
func baseFilter(req domain.QueryRequest) domain.SearchFilter {
	filter := domain.SearchFilter{
		Years: domain.YearRange{Min: req.YearMin, Max: req.YearMax},
	}
	for _, author := range req.Authors {
		if trimmed := strings.TrimSpace(author); trimmed != "" {
			filter.Authors = trimmed
			break
		}
	}
	return filter
}

func (uc *QueryUseCase) answerStandard(
	ctx context.Context,
	question string,
	topK int,
	filter domain.SearchFilter,
	start time.Time,
) (*domain.QueryResponse, error) {
	if filter.Authors == "" {
		if author := uc.detector.DetectAuthor(ctx, question); author != "" {
			filter.Authors = author
			slog.Info("author_filter_detected", "author", author)
		}
	}

	fetch := topK * standardFetchFactor
	if fetch > standardFetchCap {
		fetch = standardFetchCap
	}

	chunks := uc.retriever.Search(ctx, question, fetch, filter)
	chunks = uc.reranker.Rerank(ctx, question, chunks, topK)
	if len(chunks) == 0 {
		uc.metrics.IncNoContext(domain.IntentStandard)
		return buildResponse(noContextAnswer, nil, start), nil
	}

	answer, err := uc.generator.GenerateAnswer(ctx, question, chunks)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return buildResponse(answer, chunks, start), nil
}

func (uc *QueryUseCase) answerSynthesis(
	ctx context.Context,
	question string,
	filter domain.SearchFilter,
	section domain.Section,
	start time.Time,
) (*domain.QueryResponse, error) {
	// Per-request top_k does not apply here: synthesis needs breadth
	// across documents, so it works on a fixed wide pool.
	chunks := uc.retriever.Search(ctx, question, synthesisPoolSize, filter)
	chunks = uc.reranker.Rerank(ctx, question, chunks, synthesisKeepSize)
	if len(chunks) == 0 {
		uc.metrics.IncNoContext(domain.IntentSynthesis)
		return buildResponse(noContextAnswer, nil, start), nil
	}

	answer, err := uc.generator.SynthesizeLiterature(ctx, question, groupByDocument(chunks), section)
	if err != nil {
		return nil, fmt.Errorf("synthesize literature: %w", err)
	}
	return buildResponse(answer, chunks, start), nil
}

func (uc *QueryUseCase) answerComparison(
	ctx context.Context,
	question string,
	topK int,
	filter domain.SearchFilter,
	start time.Time,
) (*domain.QueryResponse, error) {
	authors := uc.detector.DetectAuthors(ctx, question)
	if len(authors) < 2 {
		slog.Info("comparison_fallback", "validated_authors", len(authors))
		uc.metrics.IncComparisonFallback()
		return uc.answerStandard(ctx, question, topK, filter, start)
	}

	// One retrieval per author, author filter pinned, other filters
	// shared. Results stay per-author: the comparison prompt consumes
	// separate passages, not a merged ranking, so there is no rerank.
	byAuthor := make(map[string][]domain.Chunk, len(authors))
	var all []domain.Chunk
	for _, author := range authors {
		authorFilter := filter
		authorFilter.Authors = author
		chunks := uc.retriever.Search(ctx, question, comparisonPerAuthor, authorFilter)
		if len(chunks) == 0 {
			continue
		}
		byAuthor[author] = chunks
		all = append(all, chunks...)
	}

	if len(byAuthor) == 0 {
		uc.metrics.IncNoContext(domain.IntentComparison)
		return buildResponse(noComparisonAnswer, nil, start), nil
	}

	answer, err := uc.generator.CompareAuthors(ctx, question, authors, byAuthor)
	if err != nil {
		return nil, fmt.Errorf("compare authors: %w", err)
	}
	return buildResponse(answer, all, start), nil
}

// groupByDocument buckets chunks per document in first-seen order so
// the synthesis prompt presents each paper as one coherent block.
func groupByDocument(chunks []domain.Chunk) []ports.DocumentGroup {
	index := make(map[string]int, len(chunks))
	groups := make([]ports.DocumentGroup, 0, len(chunks))
	for _, chunk := range chunks {
		i, ok := index[chunk.DocumentID]
		if !ok {
			i = len(groups)
			index[chunk.DocumentID] = i
			groups = append(groups, ports.DocumentGroup{
				DocumentID: chunk.DocumentID,
				Title:      chunk.Title,
				Authors:    chunk.Authors,
				Year:       chunk.Year,
			})
		}
		groups[i].Chunks = append(groups[i].Chunks, chunk)
	}
	return groups
}

// buildResponse projects chunks into sources, keeping only the first
// (highest-ranked) occurrence per document, and stamps elapsed time.
func buildResponse(answer string, chunks []domain.Chunk, start time.Time) *domain.QueryResponse {
	seen := make(map[string]struct{}, len(chunks))
	sources := make([]domain.Source, 0, len(chunks))
	for _, chunk := range chunks {
		if _, dup := seen[chunk.DocumentID]; dup {
			continue
		}
		seen[chunk.DocumentID] = struct{}{}
		sources = append(sources, domain.SourceFromChunk(chunk))
	}

	return &domain.QueryResponse{
		Answer:           answer,
		Sources:          sources,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
}
