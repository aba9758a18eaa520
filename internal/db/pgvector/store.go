// Package pgvector stores registry collections as Postgres tables with a pgvector column.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
)

// metaTable records the schema and index metric of every collection table.
const metaTable = "mastrvec_collections"

// Config holds connection parameters.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the Postgres-backed collection store.
type Store struct {
	db *sql.DB

	mu    sync.RWMutex
	metas map[string]collectionMeta
}

type collectionMeta struct {
	schema schema.Schema
	metric schema.Metric
}

// Open connects lazily; call WaitForReady before use.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Store{db: db, metas: make(map[string]collectionMeta)}, nil
}

// WaitForReady pings until the server answers, then makes sure the vector extension and the
// metadata table exist.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return s.bootstrap(ctx)
}

func (s *Store) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS ` + metaTable + ` (
			name         TEXT PRIMARY KEY,
			schema_json  JSONB NOT NULL,
			vector_field TEXT NOT NULL,
			metric       TEXT NOT NULL DEFAULT 'L2',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	_ = s.db.Close()
}

// HasCollection reports whether the collection is registered and its table exists.
func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	const q = `SELECT to_regclass($1) IS NOT NULL AND EXISTS (SELECT 1 FROM ` + metaTable + ` WHERE name = $2)`
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, quoteIdent(name), name).Scan(&ok); err != nil {
		return false, fmt.Errorf("check collection %s: %w", name, err)
	}
	return ok, nil
}

// CreateCollection creates the table and registers its schema in one transaction.
// DDL rejections are reported as *domain.SchemaError.
func (s *Store) CreateCollection(ctx context.Context, name string, sc schema.Schema) error {
	ddl, err := createTableSQL(name, sc)
	if err != nil {
		return err
	}
	raw, err := marshalSchema(sc)
	if err != nil {
		return err
	}
	vf, _ := sc.Vector()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return errors.Join(classify(err), tx.Rollback())
	}
	const reg = `INSERT INTO ` + metaTable + ` (name, schema_json, vector_field) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET schema_json = EXCLUDED.schema_json, vector_field = EXCLUDED.vector_field`
	if _, err := tx.ExecContext(ctx, reg, name, string(raw), vf.Name); err != nil {
		return errors.Join(fmt.Errorf("register collection %s: %w", name, err), tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.mu.Lock()
	s.metas[name] = collectionMeta{schema: sc, metric: schema.MetricL2}
	s.mu.Unlock()
	return nil
}

// CreateIndex builds the ANN index and records its metric for later searches.
func (s *Store) CreateIndex(ctx context.Context, name string, spec schema.IndexSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, err := s.meta(ctx, name); err != nil {
		return err
	}

	if q := createIndexSQL(name, spec); q != "" {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	const upd = `UPDATE ` + metaTable + ` SET metric = $1 WHERE name = $2`
	if _, err := s.db.ExecContext(ctx, upd, string(spec.Metric), name); err != nil {
		return fmt.Errorf("record index metric %s: %w", name, err)
	}

	s.mu.Lock()
	if m, ok := s.metas[name]; ok {
		m.metric = spec.Metric
		s.metas[name] = m
	}
	s.mu.Unlock()
	return nil
}

// Insert upserts records in a single transaction and returns how many were written.
func (s *Store) Insert(ctx context.Context, name string, recs []record.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	m, err := s.meta(ctx, name)
	if err != nil {
		return 0, err
	}
	q, cols := insertSQL(name, m.schema)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("prepare insert: %w", err), tx.Rollback())
	}
	defer stmt.Close()

	for i := range recs {
		args, err := rowArgs(m.schema, cols, &recs[i])
		if err != nil {
			return 0, errors.Join(fmt.Errorf("record %d: %w", recs[i].ID, err), tx.Rollback())
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, errors.Join(fmt.Errorf("insert record %d: %w", recs[i].ID, err), tx.Rollback())
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(recs), nil
}

// Search returns the limit nearest rows to vec, closest first.
func (s *Store) Search(
	ctx context.Context, name string, vec []float32, limit int, f filter.Expression,
) ([]record.Hit, error) {
	m, err := s.meta(ctx, name)
	if err != nil {
		return nil, err
	}

	q, args, cols, err := searchSQL(name, m.schema, m.metric, f, limit)
	if err != nil {
		return nil, err
	}
	args = append([]any{pgv.NewVector(vec)}, args...)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	defer rows.Close()

	var hits []record.Hit
	for rows.Next() {
		var (
			id       int64
			distance float64
			values   = make([]sql.NullString, len(cols))
		)
		dest := make([]any, 0, len(cols)+2)
		dest = append(dest, &id, &distance)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}

		fields := make(map[string]string, len(cols))
		for i, c := range cols {
			if values[i].Valid {
				fields[c] = values[i].String
			}
		}
		hits = append(hits, record.Hit{ID: id, Distance: distance, Score: distance, Fields: fields})
	}
	return hits, rows.Err()
}

// DropCollection removes the table and its registration. A missing collection is not an error.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.metas, name)
	s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+metaTable+` WHERE name = $1`, name); err != nil {
		return fmt.Errorf("unregister collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) meta(ctx context.Context, name string) (collectionMeta, error) {
	s.mu.RLock()
	m, ok := s.metas[name]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}

	var (
		raw    []byte
		metric string
	)
	const q = `SELECT schema_json, metric FROM ` + metaTable + ` WHERE name = $1`
	err := s.db.QueryRowContext(ctx, q, name).Scan(&raw, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return collectionMeta{}, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return collectionMeta{}, fmt.Errorf("load collection %s: %w", name, err)
	}
	sc, err := unmarshalSchema(raw)
	if err != nil {
		return collectionMeta{}, fmt.Errorf("collection %s: %w", name, err)
	}

	m = collectionMeta{schema: sc, metric: schema.Metric(metric)}
	s.mu.Lock()
	s.metas[name] = m
	s.mu.Unlock()
	return m, nil
}

// duplicateTable is the SQLSTATE of CREATE TABLE on an existing name.
const duplicateTable = "42P07"

// classify turns Postgres DDL rejections into schema errors; other failures pass through.
// A table without a metadata row cannot be fixed by reshaping the schema, so it is not one.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("create table: %w", err)
	}
	if pgErr.Code == duplicateTable {
		return fmt.Errorf("create table %q (drop it or run in reset mode): %w: %w",
			pgErr.TableName, domain.ErrCollectionExists, err)
	}
	if len(pgErr.Code) < 2 {
		return fmt.Errorf("create table: %w", err)
	}
	switch pgErr.Code[:2] {
	case "42", "22":
		return domain.NewSchemaError(domain.ReasonOther, pgErr.ColumnName, err)
	default:
		return fmt.Errorf("create table: %w", err)
	}
}

type fieldJSON struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Primary   bool   `json:"primary,omitempty"`
	Nullable  bool   `json:"nullable,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
	Dim       int    `json:"dim,omitempty"`
	Default   any    `json:"default,omitempty"`
}

type schemaJSON struct {
	Description   string      `json:"description,omitempty"`
	EnableDynamic bool        `json:"enable_dynamic"`
	Fields        []fieldJSON `json:"fields"`
}

func marshalSchema(sc schema.Schema) ([]byte, error) {
	out := schemaJSON{Description: sc.Description, EnableDynamic: sc.EnableDynamic}
	for _, f := range sc.Fields {
		out.Fields = append(out.Fields, fieldJSON{
			Name: f.Name, Kind: f.Kind.String(), Primary: f.Primary, Nullable: f.Nullable,
			MaxLength: f.MaxLength, Dim: f.Dim, Default: f.Default,
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return b, nil
}

func unmarshalSchema(raw []byte) (schema.Schema, error) {
	var in schemaJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return schema.Schema{}, fmt.Errorf("unmarshal schema: %w", err)
	}
	sc := schema.Schema{Description: in.Description, EnableDynamic: in.EnableDynamic}
	for _, fj := range in.Fields {
		kind, err := schema.ParseKind(fj.Kind)
		if err != nil {
			return schema.Schema{}, err
		}
		f := schema.Field{
			Name: fj.Name, Kind: kind, Primary: fj.Primary, Nullable: fj.Nullable,
			MaxLength: fj.MaxLength, Dim: fj.Dim,
		}
		if fj.Default != nil && kind != schema.KindJSON {
			if v, ok := f.Coerce(fj.Default); ok {
				f.Default = v
			}
		} else {
			f.Default = fj.Default
		}
		sc.Fields = append(sc.Fields, f)
	}
	return sc, nil
}
