package db

import "github.com/kailas-cloud/mastrvec/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to "vector"
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
}

// ScoreField is the name FT.SEARCH gives the KNN distance of the given vector field.
func ScoreField(vectorField string) string {
	if vectorField == "" {
		vectorField = "vector"
	}
	return "__" + vectorField + "_score"
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is the raw distance reported by the index.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
