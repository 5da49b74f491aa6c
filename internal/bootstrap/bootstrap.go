package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lmoreau/paperquery/internal/config"
	"github.com/lmoreau/paperquery/internal/core/ports"
	"github.com/lmoreau/paperquery/internal/core/usecase"
	"github.com/lmoreau/paperquery/internal/infrastructure/llm/ollama"
	"github.com/lmoreau/paperquery/internal/infrastructure/queue/nats"
	"github.com/lmoreau/paperquery/internal/infrastructure/rerank/onnx"
	"github.com/lmoreau/paperquery/internal/infrastructure/repository/postgres"
	"github.com/lmoreau/paperquery/internal/infrastructure/resilience"
	"github.com/lmoreau/paperquery/internal/infrastructure/vector/qdrant"
	"github.com/lmoreau/paperquery/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.ServerMetrics

	Papers  ports.PaperReader
	QueryUC ports.QueryService

	listener *nats.Listener
	vectors  *qdrant.Client

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewPaperRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	listener, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init index listener: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaTimeout, executor)
	embedder := ollama.NewEmbedder(ollamaClient, cfg.EmbedBatchSize, float64(cfg.EmbedRatePerSecond))
	generator := ollama.NewGenerator(ollamaClient)

	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantTimeout)
	scorer := onnx.NewScorer(cfg.RerankerModelPath)

	serverMetrics := metrics.NewServerMetrics("paperquery-api")

	detector := usecase.NewEntityDetector(repo)
	retriever := usecase.NewRetriever(embedder, vectors)
	reranker := usecase.NewReranker(scorer)
	queryUC := usecase.NewQueryUseCase(detector, retriever, reranker, generator, serverMetrics.QueryObserver("paperquery-api"))

	return &App{
		Config:  cfg,
		Metrics: serverMetrics,

		Papers:  repo,
		QueryUC: queryUC,

		listener: listener,
		vectors:  vectors,

		closeFn: func() {
			listener.Close()
			_ = scorer.Close()
			_ = db.Close()
		},
	}, nil
}

// RunIndexListener blocks until ctx is cancelled, dropping the cached
// corpus point count every time the indexer reports a finished paper.
func (a *App) RunIndexListener(ctx context.Context) error {
	return a.listener.SubscribePapersIndexed(ctx, func(_ context.Context, paperID string) {
		slog.Info("paper_indexed", "paper_id", paperID)
		a.vectors.InvalidateCount()
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
