package ports

import (
	"context"

	"github.com/lmoreau/paperquery/internal/core/domain"
)

// Embedder builds vectors for passage text and query text. Batch calls
// are rate-limited by the implementation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the narrow contract over the external vector
// engine. Only year bounds are expressible natively; everything else is
// filtered client-side by the retriever.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, limit int, years domain.YearRange) ([]domain.EngineHit, error)
	Count(ctx context.Context) (int, error)
}

// RelevanceScorer computes pairwise (query, text) relevance. A scorer
// may be permanently unavailable; callers check Enabled and fall back
// to the incoming order.
type RelevanceScorer interface {
	Enabled() bool
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// AnswerGenerator produces the final user-facing text for each of the
// three response strategies.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, chunks []domain.Chunk) (string, error)
	SynthesizeLiterature(ctx context.Context, topic string, groups []DocumentGroup, section domain.Section) (string, error)
	CompareAuthors(ctx context.Context, topic string, authors []string, byAuthor map[string][]domain.Chunk) (string, error)
}

// DocumentGroup is a synthesis input: one document's chunks, grouped
// before prompting so the generator sees per-document context.
type DocumentGroup struct {
	DocumentID string
	Title      string
	Authors    string
	Year       int
	Chunks     []domain.Chunk
}

// AuthorIndex validates candidate author names against the corpus. A
// name is only accepted as a filter if it occurs among indexed authors.
type AuthorIndex interface {
	AuthorExists(ctx context.Context, name string) (bool, error)
}

// PaperReader is the read path into paper metadata.
type PaperReader interface {
	GetByID(ctx context.Context, id string) (*domain.Paper, error)
	List(ctx context.Context, limit, offset int) ([]domain.Paper, int, error)
}
