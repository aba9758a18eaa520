// Package langchain adapts langchaingo embedders to domain.Embedder for self-hosted,
// OpenAI-compatible sentence-transformers servers.
package langchain

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/metrics"
)

const providerName = "local"

// Config holds the local embedding server settings.
type Config struct {
	BaseURL string
	Model   string
	// Token is optional; local servers usually run unauthenticated.
	Token  string
	Logger *zap.Logger
}

// Embedder wraps a langchaingo embeddings.Embedder.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *zap.Logger
}

// NewEmbedder creates an embedder backed by langchaingo's OpenAI client.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("local embedder: base url is required")
	}
	token := cfg.Token
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("local embedder client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("local embedder: %w", err)
	}

	return newWithEmbedder(emb, cfg.Model, cfg.Logger), nil
}

func newWithEmbedder(emb embeddings.Embedder, model string, logger *zap.Logger) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{embedder: emb, model: model, logger: logger}
}

// Embed implements domain.Embedder. Token usage is not reported by langchaingo.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	vec, err := e.embedder.EmbedQuery(ctx, text)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "api_error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("local embedding: %v: %w", err, domain.ErrEmbeddingProviderError)
	}
	if len(vec) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.model).Observe(duration.Seconds())

	return domain.EmbeddingResult{Embedding: vec}, nil
}
