package pgvector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
)

// dynamicColumn holds record fields the schema does not declare.
const dynamicColumn = "dynamic_fields"

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columnType(f schema.Field) (string, error) {
	switch f.Kind {
	case schema.KindInt64:
		return "BIGINT", nil
	case schema.KindVarChar:
		n := f.MaxLength
		if n <= 0 {
			n = schema.DefaultMaxLength
		}
		return "VARCHAR(" + strconv.Itoa(n) + ")", nil
	case schema.KindFloat:
		return "REAL", nil
	case schema.KindDouble:
		return "DOUBLE PRECISION", nil
	case schema.KindBool:
		return "BOOLEAN", nil
	case schema.KindJSON:
		return "JSONB", nil
	case schema.KindFloatVector:
		return "vector(" + strconv.Itoa(f.Dim) + ")", nil
	default:
		return "", domain.NewSchemaError(domain.ReasonInvalidField, f.Name, fmt.Errorf("unsupported kind %s", f.Kind))
	}
}

// defaultLiteral renders a declared default as a SQL literal.
func defaultLiteral(f schema.Field) (string, error) {
	switch v := f.Default.(type) {
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		if f.Kind == schema.KindJSON {
			return quoteLiteral(v) + "::jsonb", nil
		}
		return quoteLiteral(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", domain.NewSchemaError(domain.ReasonInvalidField, f.Name, err)
		}
		return quoteLiteral(string(b)) + "::jsonb", nil
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// createTableSQL renders the CREATE TABLE statement for a collection.
func createTableSQL(name string, sc schema.Schema) (string, error) {
	cols := make([]string, 0, len(sc.Fields)+1)
	for _, f := range sc.Fields {
		typ, err := columnType(f)
		if err != nil {
			return "", err
		}
		col := quoteIdent(f.Name) + " " + typ
		switch {
		case f.Primary:
			col += " PRIMARY KEY"
		case !f.Nullable:
			col += " NOT NULL"
		}
		if f.HasDefault() && !f.Primary {
			lit, err := defaultLiteral(f)
			if err != nil {
				return "", err
			}
			col += " DEFAULT " + lit
		}
		cols = append(cols, col)
	}
	if sc.EnableDynamic {
		cols = append(cols, quoteIdent(dynamicColumn)+" JSONB NOT NULL DEFAULT '{}'")
	}
	return "CREATE TABLE " + quoteIdent(name) + " (\n\t" + strings.Join(cols, ",\n\t") + "\n)", nil
}

func opClass(m schema.Metric) string {
	switch m {
	case schema.MetricIP:
		return "vector_ip_ops"
	case schema.MetricCosine:
		return "vector_cosine_ops"
	default:
		return "vector_l2_ops"
	}
}

func distanceOp(m schema.Metric) string {
	switch m {
	case schema.MetricIP:
		return "<#>"
	case schema.MetricCosine:
		return "<=>"
	default:
		return "<->"
	}
}

// createIndexSQL renders the ANN index statement; FLAT means exact scan and needs none.
func createIndexSQL(name string, spec schema.IndexSpec) string {
	idx := quoteIdent(name + "_" + spec.Field + "_idx")
	table := quoteIdent(name)
	col := quoteIdent(spec.Field)

	switch spec.Type {
	case schema.IndexIVFFlat:
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (%s %s) WITH (lists = %d)",
			idx, table, col, opClass(spec.Metric), spec.Param(schema.ParamNList, schema.DefaultNList))
	case schema.IndexHNSW:
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (%s %s) WITH (m = %d, ef_construction = %d)",
			idx, table, col, opClass(spec.Metric),
			spec.Param(schema.ParamM, 16), spec.Param(schema.ParamEFConstruction, 64))
	default:
		return ""
	}
}

// insertSQL renders the upsert statement and returns the column order of its parameters.
func insertSQL(name string, sc schema.Schema) (string, []string) {
	cols := make([]string, 0, len(sc.Fields)+1)
	for _, f := range sc.Fields {
		cols = append(cols, f.Name)
	}
	if sc.EnableDynamic {
		cols = append(cols, dynamicColumn)
	}

	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	var updates []string
	pk := sc.Primary().Name
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		params[i] = "$" + strconv.Itoa(i+1)
		if c != pk {
			updates = append(updates, quoted[i]+" = EXCLUDED."+quoted[i])
		}
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdent(name), strings.Join(quoted, ", "), strings.Join(params, ", "),
		quoteIdent(pk), strings.Join(updates, ", "))
	return q, cols
}

// rowArgs lays a record out in insertSQL's column order.
func rowArgs(sc schema.Schema, cols []string, rec *record.Record) ([]any, error) {
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		if c == dynamicColumn {
			dyn := make(map[string]any)
			for k, v := range rec.Fields {
				if _, declared := sc.Field(k); declared || record.IsReserved(k) {
					continue
				}
				dyn[k] = rec.JSONField(k, v)
			}
			b, err := json.Marshal(dyn)
			if err != nil {
				return nil, fmt.Errorf("marshal dynamic fields: %w", err)
			}
			args = append(args, string(b))
			continue
		}

		f, _ := sc.Field(c)
		switch {
		case f.Primary:
			args = append(args, rec.ID)
		case f.Kind == schema.KindFloatVector:
			args = append(args, pgv.NewVector(rec.Vector))
		case f.Kind == schema.KindJSON:
			var v any
			switch {
			case f.Name == record.FieldMetadata:
				v = rec.Metadata
				if rec.Metadata == nil {
					v = map[string]string{}
				}
			case rec.Fields[f.Name] != nil:
				v = rec.JSONField(f.Name, rec.Fields[f.Name])
			default:
				v = f.Default
			}
			if v == nil {
				args = append(args, nil)
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("marshal %s: %w", f.Name, err)
			}
			args = append(args, string(b))
		default:
			v, ok := f.Coerce(rec.Fields[f.Name])
			if !ok {
				v = f.Default
			}
			args = append(args, v)
		}
	}
	return args, nil
}

// searchSQL renders the KNN query. $1 is reserved for the query vector; the returned args
// start at $2. The selected columns after id and distance are returned as text.
func searchSQL(
	name string, sc schema.Schema, metric schema.Metric, expr filter.Expression, limit int,
) (string, []any, []string, error) {
	vf, ok := sc.Vector()
	if !ok {
		return "", nil, nil, fmt.Errorf("collection %s has no vector field", name)
	}
	pk := sc.Primary().Name

	var cols, selects []string
	for _, f := range sc.Fields {
		if f.Primary || f.Kind == schema.KindFloatVector {
			continue
		}
		cols = append(cols, f.Name)
		selects = append(selects, quoteIdent(f.Name)+"::text")
	}

	b := &whereBuilder{schema: sc, next: 2}
	where, err := b.expression(expr)
	if err != nil {
		return "", nil, nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s, %s %s $1 AS distance", quoteIdent(pk), quoteIdent(vf.Name), distanceOp(metric))
	for _, s := range selects {
		sb.WriteString(", " + s)
	}
	sb.WriteString(" FROM " + quoteIdent(name))
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	fmt.Fprintf(&sb, " ORDER BY distance LIMIT $%d", b.next)
	args := append(b.args, limit)
	return sb.String(), args, cols, nil
}

type whereBuilder struct {
	schema schema.Schema
	args   []any
	next   int
}

func (b *whereBuilder) param(v any) string {
	b.args = append(b.args, v)
	p := "$" + strconv.Itoa(b.next)
	b.next++
	return p
}

func (b *whereBuilder) expression(expr filter.Expression) (string, error) {
	var parts []string
	for _, c := range expr.Must() {
		s, err := b.condition(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if len(expr.Should()) > 0 {
		alts := make([]string, 0, len(expr.Should()))
		for _, c := range expr.Should() {
			s, err := b.condition(c)
			if err != nil {
				return "", err
			}
			alts = append(alts, s)
		}
		parts = append(parts, "("+strings.Join(alts, " OR ")+")")
	}
	for _, c := range expr.MustNot() {
		s, err := b.condition(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, "NOT ("+s+")")
	}
	return strings.Join(parts, " AND "), nil
}

// condition targets a declared column directly and anything else through dynamic_fields.
func (b *whereBuilder) condition(c filter.Condition) (string, error) {
	f, declared := b.schema.Field(c.Key())
	if declared && (f.Kind == schema.KindJSON || f.Kind == schema.KindFloatVector) {
		return "", fmt.Errorf("filter on %q: not a scalar field: %w", c.Key(), domain.ErrInvalidQuery)
	}

	textExpr := quoteIdent(dynamicColumn) + "->>" + quoteLiteral(c.Key())
	numExpr := "(" + textExpr + ")::double precision"
	if declared {
		textExpr = quoteIdent(f.Name) + "::text"
		numExpr = quoteIdent(f.Name)
		if !f.IsNumeric() {
			numExpr = ""
		}
	}

	if c.IsMatch() {
		if declared && f.IsNumeric() {
			n, err := strconv.ParseFloat(c.Match(), 64)
			if err != nil {
				return "", fmt.Errorf("filter on %q: %q is not a number: %w", c.Key(), c.Match(), domain.ErrInvalidQuery)
			}
			return numExpr + " = " + b.param(n), nil
		}
		if declared && f.Kind == schema.KindBool {
			v, ok := f.Coerce(c.Match())
			if !ok {
				return "", fmt.Errorf("filter on %q: %q is not a boolean: %w", c.Key(), c.Match(), domain.ErrInvalidQuery)
			}
			return quoteIdent(f.Name) + " = " + b.param(v), nil
		}
		return textExpr + " = " + b.param(c.Match()), nil
	}

	if numExpr == "" {
		return "", fmt.Errorf("range filter on non-numeric field %q: %w", c.Key(), domain.ErrInvalidQuery)
	}
	r := c.Range()
	var bounds []string
	if r.GT() != nil {
		bounds = append(bounds, numExpr+" > "+b.param(*r.GT()))
	}
	if r.GTE() != nil {
		bounds = append(bounds, numExpr+" >= "+b.param(*r.GTE()))
	}
	if r.LT() != nil {
		bounds = append(bounds, numExpr+" < "+b.param(*r.LT()))
	}
	if r.LTE() != nil {
		bounds = append(bounds, numExpr+" <= "+b.param(*r.LTE()))
	}
	if len(bounds) == 1 {
		return bounds[0], nil
	}
	return "(" + strings.Join(bounds, " AND ") + ")", nil
}
