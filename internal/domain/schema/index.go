package schema

import "fmt"

// IndexType selects the vector index structure.
type IndexType string

// Supported index types.
const (
	IndexIVFFlat IndexType = "IVF_FLAT"
	IndexHNSW    IndexType = "HNSW"
	IndexFlat    IndexType = "FLAT"
)

// Metric is the vector distance function.
type Metric string

// Supported metrics.
const (
	MetricL2     Metric = "L2"
	MetricIP     Metric = "IP"
	MetricCosine Metric = "COSINE"
)

// Index parameter names.
const (
	ParamNList          = "nlist"
	ParamM              = "M"
	ParamEFConstruction = "efConstruction"
)

// DefaultNList is the IVF cluster count used for registry collections.
const DefaultNList = 1024

// IndexSpec describes the vector index created once a collection exists.
type IndexSpec struct {
	Field  string
	Type   IndexType
	Metric Metric
	Params map[string]int
}

// DefaultIndex is IVF_FLAT with L2 distance and nlist=1024.
func DefaultIndex(field string) IndexSpec {
	return IndexSpec{
		Field:  field,
		Type:   IndexIVFFlat,
		Metric: MetricL2,
		Params: map[string]int{ParamNList: DefaultNList},
	}
}

// Param returns a positive index parameter or def.
func (s IndexSpec) Param(name string, def int) int {
	if v, ok := s.Params[name]; ok && v > 0 {
		return v
	}
	return def
}

// Validate checks type and metric against the supported sets.
func (s IndexSpec) Validate() error {
	if s.Field == "" {
		return fmt.Errorf("index field is required")
	}
	switch s.Type {
	case IndexIVFFlat, IndexHNSW, IndexFlat:
	default:
		return fmt.Errorf("unsupported index type %q", s.Type)
	}
	switch s.Metric {
	case MetricL2, MetricIP, MetricCosine:
	default:
		return fmt.Errorf("unsupported metric %q", s.Metric)
	}
	return nil
}

// State is the lifecycle of a collection during one negotiation.
type State int

// Collection states.
const (
	StateAbsent State = iota
	StateCreating
	StateCreated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCreating:
		return "creating"
	case StateCreated:
		return "created"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
