package ingest

import (
	"context"
	"iter"

	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/extract"
	schemauc "github.com/kailas-cloud/mastrvec/internal/usecase/schema"
	"github.com/kailas-cloud/mastrvec/internal/usecase/upsert"
)

// Dropper removes collections in reset mode.
type Dropper interface {
	DropCollection(ctx context.Context, name string) error
}

// Extractor streams records out of one XML file.
type Extractor interface {
	Records(ctx context.Context, src extract.Source) iter.Seq2[record.Record, error]
}

// Negotiator ensures a collection exists with an accepted schema.
type Negotiator interface {
	Ensure(ctx context.Context, t schemauc.Target) (schemauc.Outcome, error)
}

// Upserter writes records in batches.
type Upserter interface {
	Upsert(ctx context.Context, collection string, records []record.Record) upsert.Result
}

// Ledger remembers ingested file digests. Optional.
type Ledger interface {
	Unchanged(ctx context.Context, collection, file, digest string) (bool, error)
	Record(ctx context.Context, collection, file, digest string, records int) error
	Reset(ctx context.Context, collection string) error
}

// Progress reports per-file progress within a collection.
type Progress interface {
	Start(desc string, total int)
	Increment()
	Finish()
}
