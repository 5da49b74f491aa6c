package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// Scorer computes pairwise relevance in-process with a local sentence
// transformer: query and passages go through the same feature
// extraction pipeline and relevance is their cosine similarity. When
// the model cannot be loaded the scorer stays permanently disabled and
// the reranking layer passes candidates through unchanged.
type Scorer struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline

	mu sync.Mutex
}

func NewScorer(modelPath string) *Scorer {
	if modelPath == "" {
		slog.Info("reranker_disabled", "reason", "no model path configured")
		return &Scorer{}
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		slog.Warn("reranker_disabled", "error", err)
		return &Scorer{}
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "relevance-scorer",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		slog.Warn("reranker_disabled", "model_path", modelPath, "error", err)
		if destroyErr := session.Destroy(); destroyErr != nil {
			slog.Warn("reranker_session_cleanup_failed", "error", destroyErr)
		}
		return &Scorer{}
	}

	slog.Info("reranker_loaded", "model_path", modelPath)
	return &Scorer{
		session:  session,
		pipeline: pipeline,
	}
}

func (s *Scorer) Enabled() bool {
	return s != nil && s.pipeline != nil
}

func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("relevance scorer is disabled")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, 0, len(texts)+1)
	inputs = append(inputs, query)
	inputs = append(inputs, texts...)

	s.mu.Lock()
	result, err := s.pipeline.RunPipeline(inputs)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run scorer pipeline: %w", err)
	}
	if len(result.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("scorer embedding count mismatch: sent %d, got %d", len(inputs), len(result.Embeddings))
	}

	queryEmbedding := result.Embeddings[0]
	scores := make([]float64, len(texts))
	for i := range texts {
		scores[i] = cosineSimilarity(queryEmbedding, result.Embeddings[i+1])
	}
	return scores, nil
}

func (s *Scorer) Close() error {
	if s == nil || s.session == nil {
		return nil
	}
	return s.session.Destroy()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
