package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lmoreau/paperquery/internal/core/domain"
	"github.com/lmoreau/paperquery/internal/core/ports"
)

// Over-fetch factors compensate for engine-opaque predicates that can
// only be applied after the vector search: author matching is
// substring-based and discards aggressively, section matching less so.
const (
	authorOverFetchFactor  = 5
	sectionOverFetchFactor = 3
)

// Retriever wraps the vector engine with filter semantics the engine
// cannot express natively. It never returns an error: an unreachable
// engine or embedder degrades to an empty result set with a logged
// cause, so the caller can still respond.
type Retriever struct {
	embedder ports.Embedder
	vectors  ports.VectorSearcher
}

func NewRetriever(embedder ports.Embedder, vectors ports.VectorSearcher) *Retriever {
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
	}
}

// Search returns up to topK chunks, best-first. Year bounds are pushed
// into the engine; author and section predicates are applied here after
// proportional over-fetching.
func (r *Retriever) Search(ctx context.Context, query string, topK int, filter domain.SearchFilter) []domain.Chunk {
	if topK <= 0 {
		return nil
	}

	count, err := r.vectors.Count(ctx)
	if err != nil {
		slog.Error("vector_count_failed", "error", err)
		return nil
	}
	// Querying an empty index is a normal outcome, not an error, and
	// happens before any embedding call is made.
	if count == 0 {
		return nil
	}

	fetch := topK
	if filter.Authors != "" {
		fetch *= authorOverFetchFactor
	}
	if filter.Section != "" {
		fetch *= sectionOverFetchFactor
	}
	if fetch > count {
		fetch = count
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Error("embed_query_failed", "error", err)
		return nil
	}

	hits, err := r.vectors.Search(ctx, queryVector, fetch, filter.Years)
	if err != nil {
		slog.Error("vector_search_failed", "error", err)
		return nil
	}

	chunks := make([]domain.Chunk, 0, len(hits))
	for _, hit := range hits {
		chunk := hit.Chunk
		// Cosine distance in [0,2] becomes a relevance score; scores
		// are only comparable within the same distance convention.
		chunk.Score = 1 - hit.Distance
		if filter.Authors != "" && !containsFold(chunk.Authors, filter.Authors) {
			continue
		}
		if filter.Section != "" && chunk.Section != filter.Section {
			continue
		}
		chunks = append(chunks, chunk)
	}

	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
