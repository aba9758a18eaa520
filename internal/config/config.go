package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the mastrvec pipeline configuration.
type Config struct {
	Database    DatabaseConfig     `yaml:"database"`
	Embedding   EmbeddingConfig    `yaml:"embedding"`
	Pipeline    PipelineConfig     `yaml:"pipeline"`
	Index       IndexConfig        `yaml:"index"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Logging     LoggingConfig      `yaml:"logging"`
	Collections []CollectionConfig `yaml:"collections"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`          // debug, info, warn, error (default: determined by env)
	File          string `yaml:"file"`           // optional extra log file, rolled daily
	RetentionDays int    `yaml:"retention_days"` // rolled log files kept (default: 3)
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Port int `yaml:"port"` // 0 disables the endpoint
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, pgvector (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	DSN              string   `yaml:"dsn"` // pgvector only
	DialTimeoutSec   int      `yaml:"dial_timeout_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai, local
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	// SendDimensions asks the provider to truncate to Dimensions (OpenAI text-embedding-3 only).
	SendDimensions bool `yaml:"send_dimensions"`
	Cache          bool `yaml:"cache"` // valkey/redis drivers only
}

// PipelineConfig holds ingestion settings.
type PipelineConfig struct {
	DataDir       string `yaml:"data_dir"`
	SchemaDir     string `yaml:"schema_dir"`
	BatchSize     int    `yaml:"batch_size"`
	InsertWorkers int    `yaml:"insert_workers"`
	Mode          string `yaml:"mode"`        // reset, incremental
	IDStrategy    string `yaml:"id_strategy"` // file, hash
	LedgerPath    string `yaml:"ledger_path"` // empty keeps the ledger in memory
	Progress      string `yaml:"progress"`    // auto, always, never
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Type            string `yaml:"type"`   // IVF_FLAT, HNSW, FLAT
	Metric          string `yaml:"metric"` // L2, IP, COSINE
	NList           int    `yaml:"nlist"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// CollectionConfig describes one target collection.
type CollectionConfig struct {
	Name         string        `yaml:"name"`
	SchemaFile   string        `yaml:"schema_file"` // XSD shipped with the export; informational
	VectorField  string        `yaml:"vector_field"`
	Dim          int           `yaml:"dim"`
	DataDir      string        `yaml:"data_dir"` // optional sub-directory of pipeline.data_dir
	FilePatterns []string      `yaml:"file_patterns"`
	Fields       []FieldConfig `yaml:"fields"` // overrides the default schema when set
}

// FieldConfig declares one schema field.
type FieldConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Primary   bool   `yaml:"primary"`
	MaxLength int    `yaml:"max_length"`
	Dim       int    `yaml:"dim"`
	Default   any    `yaml:"default"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path. A .env file in the working
// directory is loaded first when present.
func LoadFile(configPath string) (Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.DialTimeoutSec <= 0 {
		c.Database.DialTimeoutSec = 30
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 30
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderLocal
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "sentence-transformers/all-mpnet-base-v2"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = DefaultDimensions
	}
	if c.Embedding.Provider == ProviderLocal && c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = DefaultLocalBaseURL
	}

	if c.Pipeline.DataDir == "" {
		c.Pipeline.DataDir = "data"
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 1000
	}
	if c.Pipeline.InsertWorkers <= 0 {
		c.Pipeline.InsertWorkers = 1
	}
	if c.Pipeline.Mode == "" {
		c.Pipeline.Mode = "reset"
	}
	if c.Pipeline.IDStrategy == "" {
		c.Pipeline.IDStrategy = "file"
	}
	if c.Pipeline.Progress == "" {
		c.Pipeline.Progress = "auto"
	}

	if c.Index.Type == "" {
		c.Index.Type = "IVF_FLAT"
	}
	if c.Index.Metric == "" {
		c.Index.Metric = "L2"
	}
	if c.Index.NList <= 0 {
		c.Index.NList = 1024
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}

	if len(c.Collections) == 0 {
		c.Collections = DefaultCollections(c.Embedding.Dimensions)
	}
	for i := range c.Collections {
		col := &c.Collections[i]
		if col.VectorField == "" {
			col.VectorField = "vector"
		}
		if col.Dim <= 0 {
			col.Dim = c.Embedding.Dimensions
		}
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
