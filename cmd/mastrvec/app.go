package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/config"
	dbPGVector "github.com/kailas-cloud/mastrvec/internal/db/pgvector"
	dbValkey "github.com/kailas-cloud/mastrvec/internal/db/valkey"
	"github.com/kailas-cloud/mastrvec/internal/domain"
	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/domain/schema"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
	logpkg "github.com/kailas-cloud/mastrvec/internal/logger"
	"github.com/kailas-cloud/mastrvec/internal/metrics"
	collectionrepo "github.com/kailas-cloud/mastrvec/internal/repository/collection"
	"github.com/kailas-cloud/mastrvec/internal/repository/embcache"
	langchainEmb "github.com/kailas-cloud/mastrvec/internal/transport/langchain"
	openaiEmb "github.com/kailas-cloud/mastrvec/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/mastrvec/internal/usecase/embedding"
	"github.com/kailas-cloud/mastrvec/internal/usecase/health"
	"github.com/kailas-cloud/mastrvec/internal/version"
)

// vectorStore is the collection store contract shared by both drivers.
type vectorStore interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, s schema.Schema) error
	CreateIndex(ctx context.Context, name string, spec schema.IndexSpec) error
	Insert(ctx context.Context, name string, recs []record.Record) (int, error)
	Search(ctx context.Context, name string, vec []float32, limit int, f filter.Expression) ([]record.Hit, error)
	DropCollection(ctx context.Context, name string) error
}

// app holds what every command needs: config, logger, store and the embedding chain.
type app struct {
	env       string
	cfg       config.Config
	logger    *zap.Logger
	store     vectorStore
	kv        *dbValkey.Store // nil on pgvector
	generator *embeddinguc.Generator
	pinger    health.DBPinger
	embHealth health.EmbeddingChecker
	closers   []func()
}

// setup loads configuration and connects to the store.
func setup(ctx context.Context, c *cli.Context) (*app, error) {
	env := c.String("env")

	var (
		cfg config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := c.String("log-level")
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logpkg.NewLogger(env, logpkg.Options{
		Level:         level,
		File:          cfg.Logging.File,
		RetentionDays: cfg.Logging.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{env: env, cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	logger.Info("Starting mastrvec",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("command", c.Command.Name),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.buildEmbedder(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openStore creates the vector store for the configured driver and waits until it answers.
// For valkey/redis the raw KV store is kept so the embedding cache can share it.
func (a *app) openStore(ctx context.Context) error {
	dbCfg := a.cfg.Database
	readiness := time.Duration(dbCfg.ReadinessTimeout) * time.Second

	switch dbCfg.Driver {
	case config.DriverValkey, config.DriverRedis:
		kv, err := dbValkey.NewStore(dbValkey.Config{
			Addrs:       dbCfg.Addrs,
			Username:    dbCfg.Username,
			Password:    dbCfg.Password,
			DB:          dbCfg.DB,
			DialTimeout: time.Duration(dbCfg.DialTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("create %s store: %w", dbCfg.Driver, err)
		}
		a.closers = append(a.closers, kv.Close)
		if err := kv.WaitForReady(ctx, readiness); err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}
		a.store = collectionrepo.New(kv)
		a.pinger = kv
		a.kv = kv

	case config.DriverPGVector:
		pg, err := dbPGVector.Open(dbPGVector.Config{DSN: dbCfg.DSN})
		if err != nil {
			return fmt.Errorf("create pgvector store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.WaitForReady(ctx, readiness); err != nil {
			return fmt.Errorf("database not ready: %w", err)
		}
		a.store = pg
		a.pinger = pg

	default:
		return fmt.Errorf("unknown database driver %q", dbCfg.Driver)
	}

	a.logger.Info("Connected to database", zap.String("driver", dbCfg.Driver))
	return nil
}

// buildEmbedder assembles the decorator chain: provider -> cache -> instrumented -> generator.
func (a *app) buildEmbedder() error {
	embCfg := a.cfg.Embedding

	var base domain.Embedder
	switch embCfg.Provider {
	case config.ProviderOpenAI:
		dims := 0
		if embCfg.SendDimensions {
			dims = embCfg.Dimensions
		}
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     embCfg.APIKey,
			BaseURL:    embCfg.BaseURL,
			Model:      embCfg.Model,
			Dimensions: dims,
			Provider:   config.ProviderOpenAI,
			Logger:     a.logger,
		})
	case config.ProviderLocal:
		local, err := langchainEmb.NewEmbedder(&langchainEmb.Config{
			BaseURL: embCfg.BaseURL,
			Model:   embCfg.Model,
			Token:   embCfg.APIKey,
			Logger:  a.logger,
		})
		if err != nil {
			return err
		}
		base = local
	default:
		return fmt.Errorf("unknown embedding provider %q", embCfg.Provider)
	}

	if hc, ok := base.(domain.HealthChecker); ok {
		a.embHealth = hc
	}

	embedder := base
	if embCfg.Cache && a.kv != nil {
		ns := embcache.Namespace{Model: embCfg.Model, Dim: embCfg.Dimensions}
		embedder = embcache.New(base, a.kv, ns, metrics.EmbeddingCacheTotal, a.logger)
	}
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, embCfg.Provider, embCfg.Model, a.logger)

	gen, err := embeddinguc.NewGenerator(embedder, embCfg.Dimensions, a.logger)
	if err != nil {
		return err
	}
	a.generator = gen

	a.logger.Info("Embedder created",
		zap.String("provider", embCfg.Provider),
		zap.String("model", embCfg.Model),
		zap.Bool("cache", embCfg.Cache && a.kv != nil),
	)
	return nil
}

// serveMetrics starts the metrics endpoint when configured. The returned func stops it.
func (a *app) serveMetrics(ctx context.Context) func() {
	port := a.cfg.Metrics.Port
	if port <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := metrics.Serve(ctx, port, health.New(a.pinger, a.embHealth), a.logger); err != nil {
			a.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
