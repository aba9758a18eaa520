package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
)

func emptyFilters() filter.Expression {
	e, _ := filter.NewExpression(nil, nil, nil)
	return e
}

func TestNew_Defaults(t *testing.T) {
	r, err := New("  Solaranlage Kiel ", emptyFilters(), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Query() != "Solaranlage Kiel" {
		t.Errorf("Query() = %q", r.Query())
	}
	if r.Limit() != DefaultLimit {
		t.Errorf("Limit() = %d, want %d", r.Limit(), DefaultLimit)
	}
	if r.MaxDistance() != 0 {
		t.Errorf("MaxDistance() = %f", r.MaxDistance())
	}
	if !r.Filters().IsEmpty() {
		t.Error("expected empty filters")
	}
}

func TestNew_Limits(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, DefaultLimit},
		{5, 5},
		{100, 100},
		{101, MaxLimit},
	}
	for _, tt := range tests {
		r, err := New("q", emptyFilters(), tt.in, 0)
		if err != nil {
			t.Fatalf("limit %d: unexpected error: %v", tt.in, err)
		}
		if r.Limit() != tt.want {
			t.Errorf("limit %d: got %d, want %d", tt.in, r.Limit(), tt.want)
		}
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		maxDistance float64
	}{
		{"empty", "", 0},
		{"blank", "   ", 0},
		{"too long", strings.Repeat("a", MaxQueryLength+1), 0},
		{"negative distance", "q", -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.query, emptyFilters(), 10, tt.maxDistance)
			if !errors.Is(err, domain.ErrInvalidQuery) {
				t.Fatalf("expected ErrInvalidQuery, got %v", err)
			}
		})
	}
}
