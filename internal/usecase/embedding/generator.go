// Package embedding turns record text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/domain"
)

// Generator enforces the configured vector dimension on top of an Embedder.
type Generator struct {
	inner  domain.Embedder
	dim    int
	logger *zap.Logger
}

// NewGenerator creates a Generator producing vectors of length dim.
func NewGenerator(inner domain.Embedder, dim int, logger *zap.Logger) (*Generator, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{inner: inner, dim: dim, logger: logger}, nil
}

// Dimension returns the configured vector length.
func (g *Generator) Dimension() int { return g.dim }

// Embed returns the vector for text. Empty text yields a zero vector without calling the
// provider. A provider result of the wrong length is reported as domain.ErrDimensionMismatch.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		g.logger.Warn("Empty text, using zero vector", zap.Int("dimension", g.dim))
		return make([]float32, g.dim), nil
	}

	res, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	if len(res.Embedding) != g.dim {
		return nil, fmt.Errorf("got %d components, expected %d: %w",
			len(res.Embedding), g.dim, domain.ErrDimensionMismatch)
	}
	return res.Embedding, nil
}
