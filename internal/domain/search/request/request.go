package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 10
	MaxLimit       = 100
)

// Request is a validated similarity query.
type Request struct {
	query       string
	filters     filter.Expression
	limit       int
	maxDistance float64
}

// New validates and normalizes search parameters.
// limit <= 0 means DefaultLimit; larger values are clamped to MaxLimit.
// maxDistance > 0 drops hits farther away than the threshold.
func New(query string, filters filter.Expression, limit int, maxDistance float64) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("query is required: %w", domain.ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if maxDistance < 0 {
		return Request{}, fmt.Errorf("max distance must not be negative: %w", domain.ErrInvalidQuery)
	}

	return Request{
		query:       query,
		filters:     filters,
		limit:       limit,
		maxDistance: maxDistance,
	}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Filters returns the pre-filter expression.
func (r *Request) Filters() filter.Expression { return r.filters }

// Limit returns the maximum results to return.
func (r *Request) Limit() int { return r.limit }

// MaxDistance returns the distance threshold, 0 when unset.
func (r *Request) MaxDistance() float64 { return r.maxDistance }
