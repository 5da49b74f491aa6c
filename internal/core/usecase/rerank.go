package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/lmoreau/paperquery/internal/core/domain"
	"github.com/lmoreau/paperquery/internal/core/ports"
)

// Reranker reorders candidates by pairwise relevance against the raw
// question. Without a usable scorer it is the identity order truncated
// to topK; callers never have to special-case the degraded path.
type Reranker struct {
	scorer ports.RelevanceScorer
}

func NewReranker(scorer ports.RelevanceScorer) *Reranker {
	return &Reranker{scorer: scorer}
}

func (r *Reranker) Enabled() bool {
	return r.scorer != nil && r.scorer.Enabled()
}

// Rerank returns at most topK chunks. Reranked scores replace the
// retrieval scores and form a fresh ranking; they are not comparable
// with pre-rerank scores or across invocations of different models.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []domain.Chunk, topK int) []domain.Chunk {
	if topK <= 0 || topK > len(chunks) {
		topK = len(chunks)
	}
	if len(chunks) == 0 {
		return chunks
	}
	if !r.Enabled() {
		return truncated(chunks, topK)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil || len(scores) != len(chunks) {
		slog.Warn("rerank_degraded", "chunks", len(chunks), "error", err)
		return truncated(chunks, topK)
	}

	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		out[i].Score = scores[i]
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	return out[:topK]
}

func truncated(chunks []domain.Chunk, topK int) []domain.Chunk {
	out := make([]domain.Chunk, topK)
	copy(out, chunks[:topK])
	return out
}
