// Package record holds the prepared, embedded form of one registry entry.
package record

import (
	"math"
	"strconv"
	"strings"
)

// Reserved field names. A source element lowercasing to one of these is kept in Metadata only.
const (
	FieldID       = "id"
	FieldVector   = "vector"
	FieldMetadata = "metadata"
)

// Record is one top-level XML element after conversion and embedding.
type Record struct {
	ID       int64
	Fields   map[string]any    // lowercased tag -> int64 | float64 | bool | string
	Vector   []float32
	Metadata map[string]string // original tag -> trimmed text
	Text     string            // embedding input, never stored as a field
}

// IsReserved reports whether name collides with a column written for every record.
func IsReserved(name string) bool {
	return name == FieldID || name == FieldVector || name == FieldMetadata
}

// VectorProblem describes why a record's vector is unusable, or returns "" when it is fine.
// dim <= 0 skips the length check.
func (r Record) VectorProblem(dim int) string {
	if len(r.Vector) == 0 {
		return "missing vector"
	}
	if dim > 0 && len(r.Vector) != dim {
		return "wrong vector length"
	}
	for _, v := range r.Vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "non-finite vector component"
		}
	}
	return ""
}

// Hit is one similarity search result. For L2 the score equals the distance; smaller is closer.
type Hit struct {
	ID       int64
	Distance float64
	Score    float64
	Fields   map[string]string
}

// JSONField returns v ready for JSON encoding. A non-finite float becomes the element's
// original text, or its formatted value when the text is unknown.
func (r Record) JSONField(name string, v any) any {
	f, ok := v.(float64)
	if !ok || (!math.IsNaN(f) && !math.IsInf(f, 0)) {
		return v
	}
	for tag, raw := range r.Metadata {
		if strings.EqualFold(tag, name) {
			return raw
		}
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
