package upsert

import (
	"context"

	"github.com/kailas-cloud/mastrvec/internal/domain/record"
)

// Inserter writes one batch of records into a collection and returns how many were stored.
type Inserter interface {
	Insert(ctx context.Context, collection string, records []record.Record) (int, error)
}
