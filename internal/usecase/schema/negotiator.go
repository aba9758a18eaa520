// Package schema creates collections, correcting schemas the store rejects.
package schema

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/domain"
	domschema "github.com/kailas-cloud/mastrvec/internal/domain/schema"
	"github.com/kailas-cloud/mastrvec/internal/metrics"
)

// MaxAttempts bounds CreateCollection calls per Ensure.
const MaxAttempts = 3

// Target describes the collection to ensure.
type Target struct {
	Name        string
	VectorField string
	Dim         int
	// Fields overrides the default MaStR schema when non-empty.
	Fields []domschema.Field
}

// Outcome reports how Ensure ended.
type Outcome struct {
	State    domschema.State
	Attempts int
	Schema   domschema.Schema
}

type correction struct {
	reason domain.SchemaReason
	field  string
}

// Negotiator creates collections and their vector index.
type Negotiator struct {
	store  Store
	index  domschema.IndexSpec
	logger *zap.Logger
}

// New creates a Negotiator. index.Field is replaced by each schema's vector field.
func New(store Store, index domschema.IndexSpec, logger *zap.Logger) *Negotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{store: store, index: index, logger: logger}
}

// BuildSchema returns the schema submitted on the first attempt.
func BuildSchema(t Target) (domschema.Schema, error) {
	if len(t.Fields) == 0 {
		if t.Dim <= 0 {
			return domschema.Schema{}, fmt.Errorf("vector dimension must be positive: %w", domain.ErrInvalidSchema)
		}
		return domschema.Default(t.Dim, t.VectorField), nil
	}
	s, err := domschema.New(t.Fields, "")
	if err != nil {
		return domschema.Schema{}, fmt.Errorf("collection %q: %w", t.Name, err)
	}
	return s, nil
}

// Ensure makes sure the collection exists, creating it when absent.
func (n *Negotiator) Ensure(ctx context.Context, t Target) (Outcome, error) {
	log := n.logger.With(zap.String("collection", t.Name))

	exists, err := n.store.HasCollection(ctx, t.Name)
	if err != nil {
		return Outcome{State: domschema.StateFailed}, fmt.Errorf("check collection %q: %w", t.Name, err)
	}
	if exists {
		log.Info("Collection exists")
		return Outcome{State: domschema.StateCreated}, nil
	}

	current, err := BuildSchema(t)
	if err != nil {
		return Outcome{State: domschema.StateFailed}, err
	}

	out := Outcome{State: domschema.StateCreating, Schema: current}
	applied := make(map[correction]bool)

	for out.Attempts < MaxAttempts {
		if err := ctx.Err(); err != nil {
			out.State = domschema.StateFailed
			return out, fmt.Errorf("ensure collection %q: %w", t.Name, err)
		}
		out.Attempts++

		err := n.store.CreateCollection(ctx, t.Name, current)
		if err == nil {
			metrics.SchemaAttemptsTotal.WithLabelValues(t.Name, "created").Inc()
			return n.createIndex(ctx, log, t.Name, out)
		}

		var se *domain.SchemaError
		if !errors.As(err, &se) {
			metrics.SchemaAttemptsTotal.WithLabelValues(t.Name, "error").Inc()
			out.State = domschema.StateFailed
			return out, fmt.Errorf("create collection %q: %w", t.Name, err)
		}
		metrics.SchemaAttemptsTotal.WithLabelValues(t.Name, "rejected").Inc()

		log.Warn("Schema rejected",
			zap.Int("attempt", out.Attempts),
			zap.String("reason", string(se.Reason)),
			zap.String("field", se.Field),
			zap.Error(err),
		)

		if out.Attempts == MaxAttempts {
			out.State = domschema.StateFailed
			return out, fmt.Errorf("collection %q after %d attempts: %w: %w",
				t.Name, out.Attempts, domain.ErrSchemaNegotiation, err)
		}

		n.dropPartial(ctx, log, t.Name)

		if next, ok := correct(current, se, applied); ok {
			log.Info("Retrying with corrected schema",
				zap.String("field", se.Field),
				zap.String("reason", string(se.Reason)),
			)
			current = next
			out.Schema = current
		}
	}

	// Unreachable: the loop returns on the last attempt.
	out.State = domschema.StateFailed
	return out, fmt.Errorf("collection %q: %w", t.Name, domain.ErrSchemaNegotiation)
}

func (n *Negotiator) createIndex(ctx context.Context, log *zap.Logger, name string, out Outcome) (Outcome, error) {
	spec := n.index
	if v, ok := out.Schema.Vector(); ok {
		spec.Field = v.Name
	}
	if err := n.store.CreateIndex(ctx, name, spec); err != nil {
		out.State = domschema.StateFailed
		return out, fmt.Errorf("create index on %q: %w", name, err)
	}

	out.State = domschema.StateCreated
	log.Info("Collection created",
		zap.Int("attempts", out.Attempts),
		zap.Int("fields", len(out.Schema.Fields)),
		zap.String("index", string(spec.Type)),
	)
	return out, nil
}

// dropPartial removes whatever a rejected CreateCollection may have left behind.
func (n *Negotiator) dropPartial(ctx context.Context, log *zap.Logger, name string) {
	exists, err := n.store.HasCollection(ctx, name)
	if err != nil || !exists {
		return
	}
	if err := n.store.DropCollection(ctx, name); err != nil {
		log.Warn("Drop partial collection failed", zap.Error(err))
	}
}

// correct applies the structured fix for se, at most once per (reason, field).
func correct(s domschema.Schema, se *domain.SchemaError, applied map[correction]bool) (domschema.Schema, bool) {
	key := correction{reason: se.Reason, field: se.Field}
	if applied[key] {
		return s, false
	}
	f, ok := s.Field(se.Field)
	if !ok {
		return s, false
	}

	switch se.Reason {
	case domain.ReasonFloatExpectedDouble:
		if f.Kind != domschema.KindFloat {
			return s, false
		}
		f = f.WithKind(domschema.KindDouble)
	case domain.ReasonJSONDefaultUnsupported:
		if f.Kind != domschema.KindJSON || !f.HasDefault() {
			return s, false
		}
		f = f.WithoutDefault()
	default:
		return s, false
	}

	applied[key] = true
	return s.Replace(f), true
}
