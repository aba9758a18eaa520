package schema

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	domschema "github.com/kailas-cloud/mastrvec/internal/domain/schema"
)

// --- Mocks ---

type mockStore struct {
	exists      bool
	hasErr      error
	createErrs  []error // consumed one per CreateCollection call; nil past the end
	indexErr    error
	created     []domschema.Schema
	indexSpecs  []domschema.IndexSpec
	drops       int
	partialLeft bool // HasCollection reports true after a rejected create
}

func (m *mockStore) HasCollection(_ context.Context, _ string) (bool, error) {
	if m.hasErr != nil {
		return false, m.hasErr
	}
	if len(m.created) > 0 {
		return m.partialLeft, nil
	}
	return m.exists, nil
}

func (m *mockStore) CreateCollection(_ context.Context, _ string, s domschema.Schema) error {
	i := len(m.created)
	m.created = append(m.created, s)
	if i < len(m.createErrs) {
		return m.createErrs[i]
	}
	return nil
}

func (m *mockStore) CreateIndex(_ context.Context, _ string, spec domschema.IndexSpec) error {
	m.indexSpecs = append(m.indexSpecs, spec)
	return m.indexErr
}

func (m *mockStore) DropCollection(_ context.Context, _ string) error {
	m.drops++
	return nil
}

func floatRejected() error {
	return domain.NewSchemaError(domain.ReasonFloatExpectedDouble, "installierte_leistung", errors.New("FLOAT unsupported"))
}

func target() Target {
	return Target{Name: "solar_anlagen", VectorField: "vector", Dim: 4}
}

func newNegotiator(s Store) *Negotiator {
	return New(s, domschema.DefaultIndex(""), nil)
}

// --- Tests ---

func TestEnsure_ExistingCollection(t *testing.T) {
	store := &mockStore{exists: true}

	out, err := newNegotiator(store).Ensure(context.Background(), target())
	require.NoError(t, err)
	assert.Equal(t, domschema.StateCreated, out.State)
	assert.Zero(t, out.Attempts)
	assert.Empty(t, store.created)
	assert.Empty(t, store.indexSpecs)
}

func TestEnsure_FirstAttemptAccepted(t *testing.T) {
	store := &mockStore{}

	out, err := newNegotiator(store).Ensure(context.Background(), target())
	require.NoError(t, err)
	assert.Equal(t, domschema.StateCreated, out.State)
	assert.Equal(t, 1, out.Attempts)
	require.Len(t, store.indexSpecs, 1)
	assert.Equal(t, domschema.IndexSpec{
		Field:  "vector",
		Type:   domschema.IndexIVFFlat,
		Metric: domschema.MetricL2,
		Params: map[string]int{domschema.ParamNList: 1024},
	}, store.indexSpecs[0])
}

func TestEnsure_FloatRejectedTwiceThenAccepted(t *testing.T) {
	store := &mockStore{createErrs: []error{floatRejected(), floatRejected()}}

	out, err := newNegotiator(store).Ensure(context.Background(), target())
	require.NoError(t, err)
	assert.Equal(t, domschema.StateCreated, out.State)
	assert.Equal(t, 3, out.Attempts)
	require.Len(t, store.created, 3)

	first, _ := store.created[0].Field("installierte_leistung")
	assert.Equal(t, domschema.KindFloat, first.Kind)
	for _, s := range store.created[1:] {
		f, _ := s.Field("installierte_leistung")
		assert.Equal(t, domschema.KindDouble, f.Kind)
		assert.Equal(t, 0.0, f.Default)
	}
	final, _ := out.Schema.Field("installierte_leistung")
	assert.Equal(t, domschema.KindDouble, final.Kind)
}

func TestEnsure_AlwaysRejecting(t *testing.T) {
	rejected := domain.NewSchemaError(domain.ReasonOther, "", errors.New("nope"))
	store := &mockStore{createErrs: []error{rejected, rejected, rejected, rejected}}

	out, err := newNegotiator(store).Ensure(context.Background(), target())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaNegotiation)
	assert.Equal(t, domschema.StateFailed, out.State)
	assert.Equal(t, 3, out.Attempts)
	assert.Len(t, store.created, 3)
	assert.Empty(t, store.indexSpecs)
}

func TestEnsure_JSONDefaultRemoved(t *testing.T) {
	fields := []domschema.Field{
		{Name: "id", Kind: domschema.KindInt64, Primary: true},
		{Name: "vector", Kind: domschema.KindFloatVector, Dim: 4},
		{Name: "metadata", Kind: domschema.KindJSON, Default: map[string]any{}},
	}
	store := &mockStore{createErrs: []error{
		domain.NewSchemaError(domain.ReasonJSONDefaultUnsupported, "metadata", nil),
	}}
	tg := target()
	tg.Fields = fields

	out, err := newNegotiator(store).Ensure(context.Background(), tg)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)

	before, _ := store.created[0].Field("metadata")
	after, _ := store.created[1].Field("metadata")
	assert.True(t, before.HasDefault())
	assert.False(t, after.HasDefault())
}

func TestEnsure_NonSchemaErrorFailsImmediately(t *testing.T) {
	store := &mockStore{createErrs: []error{errors.New("connection reset")}}

	out, err := newNegotiator(store).Ensure(context.Background(), target())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSchemaNegotiation)
	assert.Equal(t, domschema.StateFailed, out.State)
	assert.Equal(t, 1, out.Attempts)
}

func TestEnsure_OrphanedStorageFailsWithoutRetry(t *testing.T) {
	orphan := fmt.Errorf("create table %q: %w", "solar_anlagen", domain.ErrCollectionExists)
	store := &mockStore{createErrs: []error{orphan, orphan, orphan}}

	out, err := newNegotiator(store).Ensure(context.Background(), target())
	require.ErrorIs(t, err, domain.ErrCollectionExists)
	assert.Equal(t, 1, out.Attempts)
	assert.Zero(t, store.drops)
}

func TestEnsure_IndexFailure(t *testing.T) {
	store := &mockStore{indexErr: errors.New("index build failed")}

	out, err := newNegotiator(store).Ensure(context.Background(), target())
	require.Error(t, err)
	assert.Equal(t, domschema.StateFailed, out.State)
	assert.Equal(t, 1, out.Attempts)
}

func TestEnsure_DropsPartialCollectionBeforeRetry(t *testing.T) {
	store := &mockStore{createErrs: []error{floatRejected()}, partialLeft: true}

	_, err := newNegotiator(store).Ensure(context.Background(), target())
	require.NoError(t, err)
	assert.Equal(t, 1, store.drops)
}

func TestEnsure_HasCollectionError(t *testing.T) {
	store := &mockStore{hasErr: errors.New("timeout")}

	out, err := newNegotiator(store).Ensure(context.Background(), target())
	require.Error(t, err)
	assert.Equal(t, domschema.StateFailed, out.State)
	assert.Empty(t, store.created)
}

func TestEnsure_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newNegotiator(&mockStore{}).Ensure(ctx, target())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorrect_AppliedOncePerReasonAndField(t *testing.T) {
	s := domschema.Default(4, "vector")
	se := domain.NewSchemaError(domain.ReasonFloatExpectedDouble, "installierte_leistung", nil)
	applied := map[correction]bool{}

	next, ok := correct(s, se, applied)
	require.True(t, ok)
	f, _ := next.Field("installierte_leistung")
	assert.Equal(t, domschema.KindDouble, f.Kind)

	_, ok = correct(next, se, applied)
	assert.False(t, ok)

	_, ok = correct(s, domain.NewSchemaError(domain.ReasonFloatExpectedDouble, "unknown", nil), applied)
	assert.False(t, ok)
}

func TestBuildSchema(t *testing.T) {
	s, err := BuildSchema(target())
	require.NoError(t, err)
	assert.Len(t, s.Fields, 11)

	_, err = BuildSchema(Target{Name: "x", Dim: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidSchema)

	_, err = BuildSchema(Target{Name: "x", Fields: []domschema.Field{{Name: "v", Kind: domschema.KindFloatVector, Dim: 2}}})
	assert.ErrorIs(t, err, domain.ErrInvalidSchema)
}
