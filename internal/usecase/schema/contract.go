package schema

import (
	"context"

	domschema "github.com/kailas-cloud/mastrvec/internal/domain/schema"
)

// Store defines the collection lifecycle contract the negotiator drives.
type Store interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, s domschema.Schema) error
	CreateIndex(ctx context.Context, name string, spec domschema.IndexSpec) error
	DropCollection(ctx context.Context, name string) error
}
