// Package search answers free-text similarity queries against an ingested collection.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/request"
)

// Service embeds queries and runs KNN search.
type Service struct {
	repo   Repository
	embed  Embedder
	logger *zap.Logger
}

// New creates a search service.
func New(repo Repository, embed Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, embed: embed, logger: logger}
}

// Search returns up to limit hits for query, closest first.
// An empty query is domain.ErrInvalidQuery; an unknown collection is domain.ErrNotFound.
func (s *Service) Search(
	ctx context.Context, collection, query string, limit int, filters filter.Expression,
) ([]record.Hit, error) {
	req, err := request.New(query, filters, limit, 0)
	if err != nil {
		return nil, err
	}
	return s.Do(ctx, collection, &req)
}

// Do executes a validated request.
func (s *Service) Do(ctx context.Context, collection string, req *request.Request) ([]record.Hit, error) {
	vec, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.repo.Search(ctx, collection, vec, req.Limit(), req.Filters())
	if err != nil {
		return nil, err
	}

	// Post-filter: max distance
	if req.MaxDistance() > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Distance <= req.MaxDistance() {
				kept = append(kept, h)
			}
		}
		hits = kept
	}

	if len(hits) > req.Limit() {
		hits = hits[:req.Limit()]
	}

	s.logger.Debug("Search completed",
		zap.String("collection", collection),
		zap.Int("limit", req.Limit()),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}
