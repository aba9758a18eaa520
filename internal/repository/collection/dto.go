package collection

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/mastrvec/internal/db/valkey"
	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
)

// fieldRow is the JSON-serializable representation of a field for HSET.
type fieldRow struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Primary   bool   `json:"primary,omitempty"`
	Nullable  bool   `json:"nullable,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
	Dim       int    `json:"dim,omitempty"`
	Default   any    `json:"default,omitempty"`
}

type schemaRow struct {
	Description   string     `json:"description,omitempty"`
	EnableDynamic bool       `json:"enable_dynamic"`
	Fields        []fieldRow `json:"fields"`
}

// schemaToHash converts a schema to the collection metadata hash.
func schemaToHash(name string, s schema.Schema, createdAt time.Time) (map[string]string, error) {
	row := schemaRow{Description: s.Description, EnableDynamic: s.EnableDynamic}
	for _, f := range s.Fields {
		row.Fields = append(row.Fields, fieldRow{
			Name:      f.Name,
			Kind:      f.Kind.String(),
			Primary:   f.Primary,
			Nullable:  f.Nullable,
			MaxLength: f.MaxLength,
			Dim:       f.Dim,
			Default:   f.Default,
		})
	}
	schemaJSON, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	vf, _ := s.Vector()
	return map[string]string{
		"name":         name,
		"schema_json":  string(schemaJSON),
		"vector_field": vf.Name,
		"created_at":   strconv.FormatInt(createdAt.UnixMilli(), 10),
	}, nil
}

// schemaFromHash hydrates a schema from an HGETALL result map.
// JSON numbers come back as float64 and are coerced to the field kind again.
func schemaFromHash(m map[string]string) (schema.Schema, error) {
	var row schemaRow
	if err := json.Unmarshal([]byte(m["schema_json"]), &row); err != nil {
		return schema.Schema{}, fmt.Errorf("unmarshal schema: %w", err)
	}

	fields := make([]schema.Field, 0, len(row.Fields))
	for _, fr := range row.Fields {
		kind, err := schema.ParseKind(fr.Kind)
		if err != nil {
			return schema.Schema{}, err
		}
		f := schema.Field{
			Name:      fr.Name,
			Kind:      kind,
			Primary:   fr.Primary,
			Nullable:  fr.Nullable,
			MaxLength: fr.MaxLength,
			Dim:       fr.Dim,
		}
		if fr.Default != nil {
			if v, ok := f.Coerce(fr.Default); ok {
				f.Default = v
			}
		}
		fields = append(fields, f)
	}
	return schema.Schema{Fields: fields, Description: row.Description, EnableDynamic: row.EnableDynamic}, nil
}

// recordToHash lays a record out as hash fields: declared fields coerced to their kind
// (falling back to the default), undeclared fields as dynamic strings, metadata as JSON.
func recordToHash(s schema.Schema, rec *record.Record) (map[string]string, error) {
	out := make(map[string]string, len(s.Fields)+len(rec.Fields))

	for _, f := range s.Fields {
		switch {
		case f.Primary:
			out[f.Name] = strconv.FormatInt(rec.ID, 10)
		case f.Kind == schema.KindFloatVector:
			out[f.Name] = valkey.VectorBytes(rec.Vector)
		case f.Kind == schema.KindJSON:
			v, ok := jsonValue(f, rec)
			if !ok {
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("marshal %s: %w", f.Name, err)
			}
			out[f.Name] = string(b)
		default:
			v, ok := f.Coerce(rec.Fields[f.Name])
			if !ok {
				if !f.HasDefault() {
					continue
				}
				v = f.Default
			}
			out[f.Name] = schema.FormatScalar(v)
		}
	}

	if s.EnableDynamic {
		for k, v := range rec.Fields {
			if _, declared := s.Field(k); declared || record.IsReserved(k) {
				continue
			}
			out[k] = schema.FormatScalar(v)
		}
	}
	return out, nil
}

// jsonValue picks the value of a JSON field: the record metadata for the metadata field,
// otherwise the same-named record field, otherwise the declared default.
func jsonValue(f schema.Field, rec *record.Record) (any, bool) {
	if f.Name == record.FieldMetadata {
		if rec.Metadata == nil {
			return map[string]string{}, true
		}
		return rec.Metadata, true
	}
	if v, ok := rec.Fields[f.Name]; ok {
		return rec.JSONField(f.Name, v), true
	}
	if f.HasDefault() {
		return f.Default, true
	}
	return nil, false
}

// returnFields lists the declared non-vector fields FT.SEARCH should return.
func returnFields(s schema.Schema) []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Kind != schema.KindFloatVector {
			out = append(out, f.Name)
		}
	}
	return out
}
