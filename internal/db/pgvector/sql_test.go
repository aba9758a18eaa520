package pgvector

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgv "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
	"github.com/kailas-cloud/mastrvec/internal/domain/value"
)

func TestCreateTableSQL_DefaultSchema(t *testing.T) {
	q, err := createTableSQL("solar_anlagen", schema.Default(4, "vector"))
	require.NoError(t, err)

	assert.Contains(t, q, `CREATE TABLE "solar_anlagen" (`)
	assert.Contains(t, q, `"id" BIGINT PRIMARY KEY`)
	assert.Contains(t, q, `"vector" vector(4) NOT NULL`)
	assert.Contains(t, q, `"registrierungsdatum" BIGINT DEFAULT 0`)
	assert.Contains(t, q, `"betreiber_id" VARCHAR(64) DEFAULT ''`)
	assert.Contains(t, q, `"installierte_leistung" REAL DEFAULT 0`)
	assert.Contains(t, q, `"metadata" JSONB,`)
	assert.Contains(t, q, `"dynamic_fields" JSONB NOT NULL DEFAULT '{}'`)
}

func TestCreateTableSQL_QuotesLiterals(t *testing.T) {
	sc, err := schema.New([]schema.Field{
		{Name: "id", Kind: schema.KindInt64, Primary: true},
		{Name: "vector", Kind: schema.KindFloatVector, Dim: 2},
		{Name: "ort", Kind: schema.KindVarChar, Default: "Stadt's Mitte"},
		{Name: "extra", Kind: schema.KindJSON, Default: map[string]any{"a": 1}},
	}, "")
	require.NoError(t, err)

	q, err := createTableSQL("t", sc)
	require.NoError(t, err)
	assert.Contains(t, q, `DEFAULT 'Stadt''s Mitte'`)
	assert.Contains(t, q, `"extra" JSONB DEFAULT '{"a":1}'::jsonb`)
}

func TestCreateIndexSQL(t *testing.T) {
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "solar_vector_idx" ON "solar" USING ivfflat ("vector" vector_l2_ops) WITH (lists = 1024)`,
		createIndexSQL("solar", schema.DefaultIndex("vector")))

	hnsw := schema.IndexSpec{Field: "vector", Type: schema.IndexHNSW, Metric: schema.MetricCosine,
		Params: map[string]int{schema.ParamM: 32}}
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "solar_vector_idx" ON "solar" USING hnsw ("vector" vector_cosine_ops) WITH (m = 32, ef_construction = 64)`,
		createIndexSQL("solar", hnsw))

	assert.Empty(t, createIndexSQL("solar", schema.IndexSpec{Field: "vector", Type: schema.IndexFlat, Metric: schema.MetricL2}))
}

func TestInsertSQL(t *testing.T) {
	sc, err := schema.New([]schema.Field{
		{Name: "id", Kind: schema.KindInt64, Primary: true},
		{Name: "vector", Kind: schema.KindFloatVector, Dim: 2},
		{Name: "ort", Kind: schema.KindVarChar},
	}, "")
	require.NoError(t, err)

	q, cols := insertSQL("t", sc)
	assert.Equal(t, []string{"id", "vector", "ort", "dynamic_fields"}, cols)
	assert.Equal(t,
		`INSERT INTO "t" ("id", "vector", "ort", "dynamic_fields") VALUES ($1, $2, $3, $4) `+
			`ON CONFLICT ("id") DO UPDATE SET "vector" = EXCLUDED."vector", "ort" = EXCLUDED."ort", `+
			`"dynamic_fields" = EXCLUDED."dynamic_fields"`,
		q)
}

func TestRowArgs(t *testing.T) {
	sc := schema.Default(2, "vector")
	_, cols := insertSQL("t", sc)

	rec := &record.Record{
		ID:       5,
		Vector:   []float32{1, 2},
		Fields:   map[string]any{"betreiber_id": "ABR1", "installierte_leistung": int64(3), "ort": "Kiel"},
		Metadata: map[string]string{"Ort": "Kiel"},
	}
	args, err := rowArgs(sc, cols, rec)
	require.NoError(t, err)
	require.Len(t, args, len(cols))

	byCol := make(map[string]any, len(cols))
	for i, c := range cols {
		byCol[c] = args[i]
	}
	assert.Equal(t, int64(5), byCol["id"])
	assert.Equal(t, pgv.NewVector([]float32{1, 2}), byCol["vector"])
	assert.Equal(t, "ABR1", byCol["betreiber_id"])
	assert.Equal(t, 3.0, byCol["installierte_leistung"])
	assert.Equal(t, int64(0), byCol["registrierungsdatum"])
	assert.JSONEq(t, `{"Ort":"Kiel"}`, byCol["metadata"].(string))
	assert.JSONEq(t, `{"ort":"Kiel"}`, byCol["dynamic_fields"].(string))
}

func TestRowArgs_NonFiniteFloatsKeepText(t *testing.T) {
	sc, err := schema.New([]schema.Field{
		{Name: "id", Kind: schema.KindInt64, Primary: true},
		{Name: "vector", Kind: schema.KindFloatVector, Dim: 2},
		{Name: "extra", Kind: schema.KindJSON},
	}, "")
	require.NoError(t, err)
	_, cols := insertSQL("t", sc)

	rec := &record.Record{
		ID:     1,
		Vector: []float32{1, 2},
		Fields: map[string]any{
			"bemerkung": value.Convert("NaN"),
			"grenze":    value.Convert("-inf"),
			"extra":     value.Convert("Infinity"),
		},
		Metadata: map[string]string{"Bemerkung": "NaN", "Extra": "Infinity"},
	}
	args, err := rowArgs(sc, cols, rec)
	require.NoError(t, err)

	byCol := make(map[string]any, len(cols))
	for i, c := range cols {
		byCol[c] = args[i]
	}
	assert.JSONEq(t, `"Infinity"`, byCol["extra"].(string))
	assert.JSONEq(t, `{"bemerkung":"NaN","grenze":"-Inf"}`, byCol["dynamic_fields"].(string))
}

func TestSearchSQL_Filters(t *testing.T) {
	sc := schema.Default(2, "vector")
	expr, err := filter.ParseAll([]string{"installierte_leistung>=10", "installierte_leistung<100", "betreiber_id=ABR1", "ort=Kiel"})
	require.NoError(t, err)

	q, args, cols, err := searchSQL("solar", sc, schema.MetricL2, expr, 5)
	require.NoError(t, err)

	assert.Contains(t, q, `SELECT "id", "vector" <-> $1 AS distance, "registrierungsdatum"::text`)
	assert.Contains(t, q, `WHERE ("installierte_leistung" >= $2 AND "installierte_leistung" < $3)`)
	assert.Contains(t, q, `"betreiber_id"::text = $4`)
	assert.Contains(t, q, `"dynamic_fields"->>'ort' = $5`)
	assert.Contains(t, q, `ORDER BY distance LIMIT $6`)
	assert.Equal(t, []any{10.0, 100.0, "ABR1", "Kiel", 5}, args)
	assert.NotContains(t, cols, "vector")
	assert.Contains(t, cols, "metadata")
}

func TestSearchSQL_GroupsAndMetric(t *testing.T) {
	sc := schema.Default(2, "vector")
	a, _ := filter.NewMatch("betreiber_id", "A")
	b, _ := filter.NewMatch("betreiber_id", "B")
	c, _ := filter.NewMatch("eeg_mastr_nummer", "X")
	expr, err := filter.NewExpression(nil, []filter.Condition{a, b}, []filter.Condition{c})
	require.NoError(t, err)

	q, _, _, err := searchSQL("solar", sc, schema.MetricCosine, expr, 3)
	require.NoError(t, err)
	assert.Contains(t, q, `"vector" <=> $1`)
	assert.Contains(t, q, `WHERE ("betreiber_id"::text = $2 OR "betreiber_id"::text = $3) AND NOT ("eeg_mastr_nummer"::text = $4)`)
}

func TestSearchSQL_RejectsRangeOnText(t *testing.T) {
	expr, err := filter.ParseAll([]string{"betreiber_id>3"})
	require.NoError(t, err)

	_, _, _, err = searchSQL("solar", schema.Default(2, "vector"), schema.MetricL2, expr, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestClassify(t *testing.T) {
	err := classify(&pgconn.PgError{Code: "42601", Message: "syntax error", ColumnName: "vector"})
	var se *domain.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.ReasonOther, se.Reason)
	assert.Equal(t, "vector", se.Field)

	err = classify(&pgconn.PgError{Code: "42P07", Message: `relation "solar" already exists`, TableName: "solar"})
	assert.False(t, errors.As(err, &se), "an orphaned table must not trigger schema corrections")
	assert.ErrorIs(t, err, domain.ErrCollectionExists)

	err = classify(&pgconn.PgError{Code: "53300", Message: "too many connections"})
	assert.False(t, errors.As(err, &se))

	err = classify(errors.New("conn reset"))
	assert.False(t, errors.As(err, &se))
}

func TestSchemaJSONRoundTrip(t *testing.T) {
	sc := schema.Default(8, "vector")
	raw, err := marshalSchema(sc)
	require.NoError(t, err)
	require.True(t, json.Valid(raw))

	got, err := unmarshalSchema(raw)
	require.NoError(t, err)
	assert.Equal(t, sc.Fields, got.Fields)
	assert.True(t, got.EnableDynamic)
}
