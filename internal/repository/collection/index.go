package collection

import (
	"fmt"

	"github.com/kailas-cloud/mastrvec/internal/db"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
)

// buildIndex creates an IndexDefinition from a collection schema.
// Numbers become NUMERIC, strings and booleans TAG, JSON is not indexed.
// IVF_FLAT has no FT counterpart and maps to FLAT with BLOCK_SIZE = nlist.
func buildIndex(name string, s schema.Schema, spec schema.IndexSpec) (*db.IndexDefinition, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	b := db.NewIndex(indexName(name)).Prefix(collectionPrefix(name))

	var vectorSeen bool
	for _, f := range s.Fields {
		switch f.Kind {
		case schema.KindInt64, schema.KindDouble, schema.KindFloat:
			b.Numeric(f.Name)
		case schema.KindVarChar, schema.KindBool:
			b.Tag(f.Name)
		case schema.KindJSON:
		case schema.KindFloatVector:
			if f.Name != spec.Field {
				continue
			}
			vectorSeen = true
			addVector(b, f, spec)
		default:
			return nil, fmt.Errorf("unknown field kind: %s", f.Kind)
		}
	}
	if !vectorSeen {
		return nil, fmt.Errorf("index field %q is not a vector field of the collection", spec.Field)
	}

	return b.Build()
}

func addVector(b *db.IndexBuilder, f schema.Field, spec schema.IndexSpec) {
	distance := db.DistanceMetric(spec.Metric)
	switch spec.Type {
	case schema.IndexHNSW:
		b.VectorHNSW(f.Name, f.Dim, distance,
			spec.Param(schema.ParamM, 0), spec.Param(schema.ParamEFConstruction, 0))
	case schema.IndexIVFFlat:
		b.VectorFlat(f.Name, f.Dim, distance, spec.Param(schema.ParamNList, schema.DefaultNList))
	default:
		b.VectorFlat(f.Name, f.Dim, distance, 0)
	}
}
