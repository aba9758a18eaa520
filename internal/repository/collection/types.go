package collection

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/kailas-cloud/mastrvec/internal/db"
	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
)

// checkTypes rejects fields the hash layout cannot represent. The first offending field wins.
// Hash values are strings and FT NUMERIC is double precision, so single-precision floats are
// refused; JSON is an opaque string, so a JSON default cannot be honored.
func checkTypes(s schema.Schema) error {
	seen := make(map[string]bool, len(s.Fields))
	primary := false

	for _, f := range s.Fields {
		if f.Name == "" || !db.IsValidIdentifier(f.Name) {
			return domain.NewSchemaError(domain.ReasonInvalidField, f.Name,
				errors.New("field names must match [a-zA-Z0-9_:-]+"))
		}
		if seen[f.Name] {
			return domain.NewSchemaError(domain.ReasonInvalidField, f.Name, errors.New("duplicate field name"))
		}
		seen[f.Name] = true
		if f.Primary {
			primary = true
		}

		switch f.Kind {
		case schema.KindFloat:
			return domain.NewSchemaError(domain.ReasonFloatExpectedDouble, f.Name,
				errors.New("numeric fields are stored in double precision; declare the field as double"))
		case schema.KindJSON:
			if f.HasDefault() {
				return domain.NewSchemaError(domain.ReasonJSONDefaultUnsupported, f.Name,
					errors.New("json fields do not support default values"))
			}
		case schema.KindFloatVector:
			if f.Dim <= 0 {
				return domain.NewSchemaError(domain.ReasonInvalidField, f.Name,
					fmt.Errorf("vector dimension must be positive, got %d", f.Dim))
			}
		case schema.KindVarChar:
			if d, ok := f.Default.(string); ok && f.MaxLength > 0 && utf8.RuneCountInString(d) > f.MaxLength {
				return domain.NewSchemaError(domain.ReasonInvalidField, f.Name,
					fmt.Errorf("default longer than max length %d", f.MaxLength))
			}
		}
	}

	if !primary {
		return domain.NewSchemaError(domain.ReasonInvalidField, "", errors.New("no primary key field"))
	}
	return nil
}

// normalizeFilter ensures every filter key is an indexed field of the schema and rewrites exact
// matches on numeric fields as closed ranges, since FT NUMERIC fields only answer range queries.
// Bool matches are rewritten to the stored "1"/"0" tag.
func normalizeFilter(s schema.Schema, expr filter.Expression) (filter.Expression, error) {
	if expr.IsEmpty() {
		return expr, nil
	}
	groups := [][]filter.Condition{expr.Must(), expr.Should(), expr.MustNot()}
	out := make([][]filter.Condition, len(groups))

	for gi, group := range groups {
		for _, c := range group {
			f, ok := s.Field(c.Key())
			if !ok || f.Kind == schema.KindJSON || f.Kind == schema.KindFloatVector {
				return filter.Expression{}, fmt.Errorf("filter on %q: not an indexed field: %w", c.Key(), domain.ErrInvalidQuery)
			}
			if c.IsRange() && !f.IsNumeric() {
				return filter.Expression{}, fmt.Errorf("range filter on non-numeric field %q: %w", c.Key(), domain.ErrInvalidQuery)
			}
			if c.IsMatch() && f.IsNumeric() {
				n, err := strconv.ParseFloat(c.Match(), 64)
				if err != nil {
					return filter.Expression{}, fmt.Errorf("filter on %q: %q is not a number: %w", c.Key(), c.Match(), domain.ErrInvalidQuery)
				}
				r, err := filter.NewRangeFilter(nil, &n, nil, &n)
				if err != nil {
					return filter.Expression{}, err
				}
				if c, err = filter.NewRange(c.Key(), r); err != nil {
					return filter.Expression{}, err
				}
			}
			if c.IsMatch() && f.Kind == schema.KindBool {
				b, ok := f.Coerce(c.Match())
				if !ok {
					return filter.Expression{}, fmt.Errorf("filter on %q: %q is not a boolean: %w", c.Key(), c.Match(), domain.ErrInvalidQuery)
				}
				bc, err := filter.NewMatch(c.Key(), schema.FormatScalar(b))
				if err != nil {
					return filter.Expression{}, err
				}
				c = bc
			}
			out[gi] = append(out[gi], c)
		}
	}
	return filter.NewExpression(out[0], out[1], out[2])
}
