package search

import (
	"context"

	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
)

// Repository defines the storage contract for search operations.
type Repository interface {
	Search(
		ctx context.Context, collection string,
		vector []float32, limit int, filters filter.Expression,
	) ([]record.Hit, error)
}

// Embedder vectorizes query text with the same model used at ingest.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
