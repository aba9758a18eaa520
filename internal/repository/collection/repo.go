// Package collection stores registry collections in Valkey/Redis: schema metadata in a hash,
// one hash per record, and an FT index for vector search.
package collection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/mastrvec/internal/db"
	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
)

// store is the consumer interface for collections (ISP).
//
//nolint:interfacebloat // collection repo needs hash + index + search operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	DelPrefix(ctx context.Context, prefix string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo is the Valkey-backed collection store.
type Repo struct {
	store store
	now   func() time.Time

	mu      sync.RWMutex
	schemas map[string]schema.Schema
}

// New creates a collection repository.
func New(s store) *Repo {
	return &Repo{store: s, now: time.Now, schemas: make(map[string]schema.Schema)}
}

// HasCollection reports whether both the metadata hash and the FT index exist.
func (r *Repo) HasCollection(ctx context.Context, name string) (bool, error) {
	exists, err := r.store.Exists(ctx, metaKey(name))
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", name, err)
	}
	if !exists {
		return false, nil
	}
	idx, err := r.store.IndexExists(ctx, indexName(name))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	return idx, nil
}

// CreateCollection validates s against the hash type system and stores it as collection metadata.
// Incompatible fields are reported as *domain.SchemaError.
func (r *Repo) CreateCollection(ctx context.Context, name string, s schema.Schema) error {
	if err := checkTypes(s); err != nil {
		return err
	}

	data, err := schemaToHash(name, s, r.now())
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, metaKey(name), data); err != nil {
		return fmt.Errorf("hset collection %s: %w", name, err)
	}

	r.mu.Lock()
	r.schemas[name] = s
	r.mu.Unlock()
	return nil
}

// CreateIndex builds the FT index over the stored schema. An existing index is kept.
func (r *Repo) CreateIndex(ctx context.Context, name string, spec schema.IndexSpec) error {
	s, err := r.schema(ctx, name)
	if err != nil {
		return err
	}
	def, err := buildIndex(name, s, spec)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// Insert writes records as hashes in one pipelined round-trip and returns how many were written.
// Rows with an existing ID are overwritten.
func (r *Repo) Insert(ctx context.Context, name string, recs []record.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	s, err := r.schema(ctx, name)
	if err != nil {
		return 0, err
	}

	items := make([]db.HashSetItem, 0, len(recs))
	for i := range recs {
		fields, err := recordToHash(s, &recs[i])
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", recs[i].ID, err)
		}
		items = append(items, db.HashSetItem{Key: rowKey(name, recs[i].ID), Fields: fields})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", name, err)
	}
	return len(items), nil
}

// Search returns the limit nearest records to vec, closest first.
func (r *Repo) Search(
	ctx context.Context, name string, vec []float32, limit int, f filter.Expression,
) ([]record.Hit, error) {
	s, err := r.schema(ctx, name)
	if err != nil {
		return nil, err
	}
	vf, _ := s.Vector()
	f, err = normalizeFilter(s, f)
	if err != nil {
		return nil, err
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    indexName(name),
		VectorField:  vf.Name,
		Filters:      f,
		Vector:       vec,
		K:            limit,
		ReturnFields: returnFields(s),
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	hits := make([]record.Hit, 0, len(res.Entries))
	prefix := collectionPrefix(name)
	for _, e := range res.Entries {
		id, err := strconv.ParseInt(strings.TrimPrefix(e.Key, prefix), 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, record.Hit{ID: id, Distance: e.Score, Score: e.Score, Fields: e.Fields})
	}
	return hits, nil
}

// DropCollection removes the index, every row, and the metadata. A missing collection is not an error.
func (r *Repo) DropCollection(ctx context.Context, name string) error {
	r.mu.Lock()
	delete(r.schemas, name)
	r.mu.Unlock()

	if err := r.store.DropIndex(ctx, indexName(name)); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", name, err)
	}
	if _, err := r.store.DelPrefix(ctx, collectionPrefix(name)); err != nil {
		return fmt.Errorf("delete rows of %s: %w", name, err)
	}
	if err := r.store.Del(ctx, metaKey(name)); err != nil {
		return fmt.Errorf("del collection %s: %w", name, err)
	}
	return nil
}

// schema returns the collection schema, from cache or the metadata hash.
func (r *Repo) schema(ctx context.Context, name string) (schema.Schema, error) {
	r.mu.RLock()
	s, ok := r.schemas[name]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	m, err := r.store.HGetAll(ctx, metaKey(name))
	if err != nil {
		return schema.Schema{}, fmt.Errorf("hgetall collection %s: %w", name, err)
	}
	if len(m) == 0 {
		return schema.Schema{}, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	s, err = schemaFromHash(m)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("collection %s: %w", name, err)
	}

	r.mu.Lock()
	r.schemas[name] = s
	r.mu.Unlock()
	return s, nil
}

// Valkey key patterns: mastrvec:collection:{name}, mastrvec:{name}:idx, mastrvec:{name}:{id}

func metaKey(name string) string {
	return fmt.Sprintf("%scollection:%s", domain.KeyPrefix, name)
}

func indexName(name string) string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, name)
}

func collectionPrefix(name string) string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, name)
}

func rowKey(name string, id int64) string {
	return collectionPrefix(name) + strconv.FormatInt(id, 10)
}
