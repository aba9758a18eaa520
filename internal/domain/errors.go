package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSchema signals an invalid schema definition.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrDimensionMismatch signals an embedding whose length differs from the configured dimension.
	// It is fatal for the file being processed.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrSchemaNegotiation signals that a collection could not be created within the attempt bound.
	ErrSchemaNegotiation = errors.New("schema negotiation failed")
	// ErrCollectionExists signals storage left behind for a collection the store has no schema for.
	ErrCollectionExists = errors.New("collection storage already exists")
	// ErrInvalidQuery signals an unusable search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// SchemaReason classifies why a store rejected a collection schema.
type SchemaReason string

// Schema rejection reasons reported by stores.
const (
	// ReasonFloatExpectedDouble: the store keeps numerics in double precision only.
	ReasonFloatExpectedDouble SchemaReason = "float_expected_double"
	// ReasonJSONDefaultUnsupported: the store does not accept default values on JSON fields.
	ReasonJSONDefaultUnsupported SchemaReason = "json_default_unsupported"
	// ReasonInvalidField: a field definition is malformed for this store.
	ReasonInvalidField SchemaReason = "invalid_field"
	// ReasonOther covers store rejections without a more specific classification.
	ReasonOther SchemaReason = "other"
)

// SchemaError is a structured schema rejection returned by collection stores.
type SchemaError struct {
	Reason SchemaReason
	Field  string
	Err    error
}

// NewSchemaError creates a schema rejection for the given field.
func NewSchemaError(reason SchemaReason, field string, err error) *SchemaError {
	return &SchemaError{Reason: reason, Field: field, Err: err}
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrInvalidSchema.Error(), e.Reason)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrInvalidSchema so callers can match with errors.Is.
func (e *SchemaError) Is(target error) bool { return target == ErrInvalidSchema }

func (e *SchemaError) Unwrap() error { return e.Err }
