package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
)

// Database drivers.
const (
	DriverValkey   = "valkey"
	DriverRedis    = "redis"
	DriverPGVector = "pgvector"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// reservedCollection collides with the Valkey metadata key namespace.
const reservedCollection = "collection"

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if _, err := c.IndexSpec(); err != nil {
		return err
	}
	if c.Logging.RetentionDays < 0 {
		return fmt.Errorf("logging.retention_days must not be negative, got %d", c.Logging.RetentionDays)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}
	return c.validateCollections()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverValkey, DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return errors.New("database.addrs is required")
		}
	case DriverPGVector:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the pgvector driver")
		}
		if c.Embedding.Cache {
			return errors.New("embedding.cache requires the valkey or redis driver")
		}
	default:
		return fmt.Errorf("database.driver must be valkey, redis or pgvector, got %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return errors.New("embedding.api_key is required for the openai provider")
		}
	case ProviderLocal:
		if c.Embedding.BaseURL == "" {
			return errors.New("embedding.base_url is required for the local provider")
		}
	default:
		return fmt.Errorf("embedding.provider must be openai or local, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Mode {
	case "reset", "incremental":
	default:
		return fmt.Errorf("pipeline.mode must be reset or incremental, got %q", c.Pipeline.Mode)
	}
	switch c.Pipeline.IDStrategy {
	case "file", "hash":
	default:
		return fmt.Errorf("pipeline.id_strategy must be file or hash, got %q", c.Pipeline.IDStrategy)
	}
	switch c.Pipeline.Progress {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("pipeline.progress must be auto, always or never, got %q", c.Pipeline.Progress)
	}
	return nil
}

func (c *Config) validateCollections() error {
	seen := make(map[string]bool, len(c.Collections))
	for i, col := range c.Collections {
		if !identRegex.MatchString(col.Name) {
			return fmt.Errorf("collections[%d]: invalid name %q", i, col.Name)
		}
		if col.Name == reservedCollection && c.Database.Driver != DriverPGVector {
			return fmt.Errorf("collections[%d]: name %q is reserved", i, col.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("collections[%d]: duplicate name %q", i, col.Name)
		}
		seen[col.Name] = true

		if col.Dim != c.Embedding.Dimensions {
			return fmt.Errorf("collection %s: dim %d does not match embedding.dimensions %d",
				col.Name, col.Dim, c.Embedding.Dimensions)
		}
		if len(col.FilePatterns) == 0 {
			return fmt.Errorf("collection %s: file_patterns is required", col.Name)
		}
		for _, p := range col.FilePatterns {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("collection %s: invalid file pattern %q", col.Name, p)
			}
		}
		if _, err := col.SchemaFields(); err != nil {
			return fmt.Errorf("collection %s: %w", col.Name, err)
		}
	}
	return nil
}

// IndexSpec converts the index section; Field is left for the negotiator to fill.
func (c *Config) IndexSpec() (schema.IndexSpec, error) {
	spec := schema.IndexSpec{
		Type:   schema.IndexType(c.Index.Type),
		Metric: schema.Metric(c.Index.Metric),
	}
	switch spec.Type {
	case schema.IndexIVFFlat:
		spec.Params = map[string]int{schema.ParamNList: c.Index.NList}
	case schema.IndexHNSW:
		spec.Params = map[string]int{
			schema.ParamM:              c.Index.HNSWM,
			schema.ParamEFConstruction: c.Index.HNSWEFConstruct,
		}
	case schema.IndexFlat:
	default:
		return schema.IndexSpec{}, fmt.Errorf("index.type must be IVF_FLAT, HNSW or FLAT, got %q", c.Index.Type)
	}
	switch spec.Metric {
	case schema.MetricL2, schema.MetricIP, schema.MetricCosine:
	default:
		return schema.IndexSpec{}, fmt.Errorf("index.metric must be L2, IP or COSINE, got %q", c.Index.Metric)
	}
	return spec, nil
}

// SchemaFields converts explicit field declarations. Nil means the default schema.
func (c CollectionConfig) SchemaFields() ([]schema.Field, error) {
	if len(c.Fields) == 0 {
		return nil, nil
	}
	out := make([]schema.Field, len(c.Fields))
	for i, f := range c.Fields {
		kind, err := schema.ParseKind(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		dim := f.Dim
		if kind == schema.KindFloatVector && dim == 0 {
			dim = c.Dim
		}
		out[i] = schema.Field{
			Name:      f.Name,
			Kind:      kind,
			Primary:   f.Primary,
			MaxLength: f.MaxLength,
			Dim:       dim,
			Default:   normalizeYAML(f.Default),
		}
	}
	if _, err := schema.New(out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeYAML maps yaml.v3 integer decoding onto the int64 the schema coerces from.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalizeYAML(x)
		}
		return out
	default:
		return v
	}
}
