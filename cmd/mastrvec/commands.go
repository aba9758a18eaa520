package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/config"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/filter"
	"github.com/kailas-cloud/mastrvec/internal/domain/search/request"
	"github.com/kailas-cloud/mastrvec/internal/extract"
	"github.com/kailas-cloud/mastrvec/internal/progress"
	"github.com/kailas-cloud/mastrvec/internal/repository/ledger"
	"github.com/kailas-cloud/mastrvec/internal/usecase/ingest"
	schemauc "github.com/kailas-cloud/mastrvec/internal/usecase/schema"
	searchuc "github.com/kailas-cloud/mastrvec/internal/usecase/search"
	"github.com/kailas-cloud/mastrvec/internal/usecase/upsert"
)

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func runCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	modeName := c.String("mode")
	if modeName == "" {
		modeName = cfg.Pipeline.Mode
	}
	mode, err := ingest.ParseMode(modeName)
	if err != nil {
		return err
	}

	dataDir := c.String("data-dir")
	if dataDir == "" {
		dataDir = cfg.Pipeline.DataDir
	}

	cols, err := ingestCollections(cfg.Collections)
	if err != nil {
		return err
	}

	index, err := cfg.IndexSpec()
	if err != nil {
		return err
	}

	up, err := upsert.New(a.store, upsert.Config{
		BatchSize: cfg.Pipeline.BatchSize,
		Dimension: cfg.Embedding.Dimensions,
		Workers:   cfg.Pipeline.InsertWorkers,
	}, logger)
	if err != nil {
		return err
	}
	defer up.Release()

	led, err := ledger.Open(cfg.Pipeline.LedgerPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Warn("Closing ledger failed", zap.Error(err))
		}
	}()

	stopMetrics := a.serveMetrics(ctx)
	defer stopMetrics()

	svc := ingest.New(ingest.Deps{
		Store:      a.store,
		Extractor:  extract.New(a.generator, extract.IDStrategy(cfg.Pipeline.IDStrategy), logger),
		Negotiator: schemauc.New(a.store, index, logger),
		Upserter:   up,
		Ledger:     led,
		Progress:   progress.New(progress.Enabled(cfg.Pipeline.Progress)),
		Digest:     ledger.FileDigest,
	}, dataDir, cols, logger)

	report, err := svc.Run(ctx, mode, c.StringSlice("collection")...)
	logReport(logger, report)
	return err
}

// ingestCollections maps configured collections onto the orchestrator's view.
func ingestCollections(cfgs []config.CollectionConfig) ([]ingest.Collection, error) {
	out := make([]ingest.Collection, 0, len(cfgs))
	for _, cc := range cfgs {
		fields, err := cc.SchemaFields()
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", cc.Name, err)
		}
		out = append(out, ingest.Collection{
			Name:        cc.Name,
			VectorField: cc.VectorField,
			Dim:         cc.Dim,
			SubDir:      cc.DataDir,
			Patterns:    cc.FilePatterns,
			Fields:      fields,
		})
	}
	return out, nil
}

func logReport(logger *zap.Logger, report ingest.Report) {
	for _, cr := range report.Collections {
		fields := []zap.Field{
			zap.String("collection", cr.Name),
			zap.Int("files_matched", cr.FilesMatched),
			zap.Int("files_processed", cr.FilesProcessed),
			zap.Int("files_failed", cr.FilesFailed),
			zap.Int("files_unchanged", cr.FilesUnchanged),
			zap.Int("records_extracted", cr.RecordsExtracted),
			zap.Int("records_inserted", cr.RecordsInserted),
			zap.Int("records_skipped", cr.RecordsSkipped),
			zap.Int("failed_batches", cr.FailedBatches),
			zap.Stringer("schema_state", cr.Schema.State),
			zap.Int("schema_attempts", cr.Schema.Attempts),
		}
		if cr.Err != nil {
			logger.Error("Collection summary", append(fields, zap.Error(cr.Err))...)
			continue
		}
		logger.Info("Collection summary", fields...)
	}
}

// searchHit is one line of search output.
type searchHit struct {
	ID       int64             `json:"id"`
	Distance float64           `json:"distance"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func searchCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	expr, err := filter.ParseAll(c.StringSlice("where"))
	if err != nil {
		return fmt.Errorf("parse filters: %w", err)
	}
	req, err := request.New(c.String("query"), expr, c.Int("limit"), c.Float64("max-distance"))
	if err != nil {
		return err
	}

	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.close()

	hits, err := searchuc.New(a.store, a.generator, a.logger).Do(ctx, c.String("collection"), &req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	for _, h := range hits {
		if err := enc.Encode(searchHit{ID: h.ID, Distance: h.Distance, Fields: h.Fields}); err != nil {
			return err
		}
	}
	return nil
}

func dropCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	a, err := setup(ctx, c)
	if err != nil {
		return err
	}
	defer a.close()

	names := c.StringSlice("collection")
	if len(names) == 0 {
		for _, cc := range a.cfg.Collections {
			names = append(names, cc.Name)
		}
	}

	led, err := ledger.Open(a.cfg.Pipeline.LedgerPath, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = led.Close() }()

	for _, name := range names {
		if err := a.store.DropCollection(ctx, name); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		if err := led.Reset(ctx, name); err != nil {
			return fmt.Errorf("reset ledger for %s: %w", name, err)
		}
		a.logger.Info("Collection dropped", zap.String("collection", name))
	}
	return nil
}
