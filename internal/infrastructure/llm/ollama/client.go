package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lmoreau/paperquery/internal/core/domain"
	"github.com/lmoreau/paperquery/internal/core/ports"
	"github.com/lmoreau/paperquery/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, fn, classifyOllamaError)
	} else {
		err = fn(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

// Embedder issues batched embedding calls with a rate limiter between
// batches so large inputs do not overwhelm the provider.
type Embedder struct {
	client    *Client
	batchSize int
	limiter   *rate.Limiter
}

func NewEmbedder(client *Client, batchSize int, batchesPerSecond float64) *Embedder {
	if batchSize <= 0 {
		batchSize = 16
	}
	var limiter *rate.Limiter
	if batchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(batchesPerSecond), 1)
	}
	return &Embedder{
		client:    client,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("embed rate limit wait: %w", err)
			}
		}

		request := map[string]any{
			"model": e.client.embedModel,
			"input": batch,
		}
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		err := e.client.call(ctx, "embed", func(callCtx context.Context) error {
			return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
		})
		if err != nil {
			return nil, err
		}
		if len(response.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embed batch size mismatch: sent %d, got %d", len(batch), len(response.Embeddings))
		}
		out = append(out, response.Embeddings...)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator renders the three response strategies through the
// generation model.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, chunks []domain.Chunk) (string, error) {
	return g.generateText(ctx, buildAnswerPrompt(question, chunks))
}

func (g *Generator) SynthesizeLiterature(ctx context.Context, topic string, groups []ports.DocumentGroup, section domain.Section) (string, error) {
	return g.generateText(ctx, buildSynthesisPrompt(topic, groups, section))
}

func (g *Generator) CompareAuthors(ctx context.Context, topic string, authors []string, byAuthor map[string][]domain.Chunk) (string, error) {
	return g.generateText(ctx, buildComparisonPrompt(topic, authors, byAuthor))
}

func (g *Generator) generateText(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	err := g.client.call(ctx, "generate", func(callCtx context.Context) error {
		return g.client.postJSON(callCtx, "/api/generate", request, &response, "generate")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
