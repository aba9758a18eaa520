package schema

import (
	"fmt"

	"github.com/kailas-cloud/mastrvec/internal/domain"
)

// Schema is an ordered set of fields. Undeclared record fields are kept as dynamic fields
// when EnableDynamic is set.
type Schema struct {
	Fields        []Field
	Description   string
	EnableDynamic bool
}

// New applies the field rules and validates the result:
// every non-primary, non-vector field becomes nullable, and scalar fields without an
// explicit default receive the zero value of their kind.
func New(fields []Field, description string) (Schema, error) {
	out := make([]Field, len(fields))
	seen := make(map[string]bool, len(fields))
	primaries, vectors := 0, 0

	for i, f := range fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("field %d: name is required: %w", i, domain.ErrInvalidSchema)
		}
		if seen[f.Name] {
			return Schema{}, fmt.Errorf("duplicate field %q: %w", f.Name, domain.ErrInvalidSchema)
		}
		seen[f.Name] = true

		switch {
		case f.Primary:
			if f.Kind != KindInt64 {
				return Schema{}, fmt.Errorf("primary field %q must be int64: %w", f.Name, domain.ErrInvalidSchema)
			}
			f.Nullable = false
			f.Default = nil
			primaries++
		case f.Kind == KindFloatVector:
			if f.Dim <= 0 {
				return Schema{}, fmt.Errorf("vector field %q needs a positive dim: %w", f.Name, domain.ErrInvalidSchema)
			}
			vectors++
		default:
			f.Nullable = true
			if f.HasDefault() {
				v, ok := f.Coerce(f.Default)
				if !ok {
					return Schema{}, fmt.Errorf("default of %q is not a %s: %w", f.Name, f.Kind, domain.ErrInvalidSchema)
				}
				f.Default = v
			} else {
				f.Default = typeDefault(f.Kind)
			}
		}
		if f.Kind == KindVarChar && f.MaxLength <= 0 {
			f.MaxLength = DefaultMaxLength
		}
		out[i] = f
	}

	if primaries != 1 {
		return Schema{}, fmt.Errorf("exactly one primary field required, got %d: %w", primaries, domain.ErrInvalidSchema)
	}
	if vectors == 0 {
		return Schema{}, fmt.Errorf("a float_vector field is required: %w", domain.ErrInvalidSchema)
	}

	return Schema{Fields: out, Description: description, EnableDynamic: true}, nil
}

// Default returns the eleven-field registry schema used when a collection declares none.
func Default(dim int, vectorField string) Schema {
	if vectorField == "" {
		vectorField = "vector"
	}
	s, err := New([]Field{
		{Name: "id", Kind: KindInt64, Primary: true},
		{Name: vectorField, Kind: KindFloatVector, Dim: dim},
		{Name: "registrierungsdatum", Kind: KindInt64},
		{Name: "datum_letzte_aktualisierung", Kind: KindInt64},
		{Name: "eeg_mastr_nummer", Kind: KindVarChar, MaxLength: 64},
		{Name: "anlagenschluessel_eeg", Kind: KindVarChar, MaxLength: 64},
		{Name: "einheit_mastr_nummer", Kind: KindVarChar, MaxLength: 64},
		{Name: "netzanschlusspunkt_id", Kind: KindVarChar, MaxLength: 64},
		{Name: "betreiber_id", Kind: KindVarChar, MaxLength: 64},
		{Name: "installierte_leistung", Kind: KindFloat},
		{Name: "metadata", Kind: KindJSON},
	}, "MaStR registry records")
	if err != nil {
		// Only reachable with dim <= 0; config validation rules that out.
		panic(err)
	}
	return s
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Primary returns the primary key field.
func (s Schema) Primary() Field {
	for _, f := range s.Fields {
		if f.Primary {
			return f
		}
	}
	return Field{}
}

// Vector returns the first float_vector field.
func (s Schema) Vector() (Field, bool) {
	for _, f := range s.Fields {
		if f.Kind == KindFloatVector {
			return f, true
		}
	}
	return Field{}, false
}

// Replace returns a copy of s with the field of the same name swapped for f.
func (s Schema) Replace(f Field) Schema {
	out := s.Clone()
	for i := range out.Fields {
		if out.Fields[i].Name == f.Name {
			out.Fields[i] = f
		}
	}
	return out
}

// Clone returns a deep copy of the field list.
func (s Schema) Clone() Schema {
	out := s
	out.Fields = append([]Field(nil), s.Fields...)
	return out
}
