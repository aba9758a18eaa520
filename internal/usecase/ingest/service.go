// Package ingest drives the per-collection MaStR ingestion run.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	domschema "github.com/kailas-cloud/mastrvec/internal/domain/schema"
	"github.com/kailas-cloud/mastrvec/internal/extract"
	"github.com/kailas-cloud/mastrvec/internal/logger"
	"github.com/kailas-cloud/mastrvec/internal/metrics"
	schemauc "github.com/kailas-cloud/mastrvec/internal/usecase/schema"
)

// Mode selects what happens to existing collections.
type Mode string

// Run modes.
const (
	// ModeReset drops every selected collection and forgets its ledger entries first.
	ModeReset Mode = "reset"
	// ModeIncremental keeps collections and skips files whose digest is unchanged.
	ModeIncremental Mode = "incremental"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeReset, ModeIncremental:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %s or %s)", s, ModeReset, ModeIncremental)
	}
}

// Collection is one target collection and the files that feed it.
type Collection struct {
	Name        string
	VectorField string
	Dim         int
	// SubDir narrows the scan to DataDir/SubDir when set.
	SubDir   string
	Patterns []string
	Fields   []domschema.Field
}

// Deps bundles the collaborators of Service.
type Deps struct {
	Store      Dropper
	Extractor  Extractor
	Negotiator Negotiator
	Upserter   Upserter
	Ledger     Ledger   // nil disables incremental skipping
	Progress   Progress // nil disables the progress bar
	// Digest hashes a file for the ledger.
	Digest func(path string) (string, error)
}

// Service runs the collection pipeline.
type Service struct {
	deps        Deps
	dataDir     string
	collections []Collection
	logger      *zap.Logger
}

// New creates an ingest service over collections in declaration order.
func New(deps Deps, dataDir string, collections []Collection, l *zap.Logger) *Service {
	if l == nil {
		l = zap.NewNop()
	}
	return &Service{deps: deps, dataDir: dataDir, collections: collections, logger: l}
}

// Run ingests every configured collection, or only the named ones.
// Failures of single files or collections are logged and recorded in the report;
// the returned error is reserved for cancellation and invalid arguments.
func (s *Service) Run(ctx context.Context, mode Mode, only ...string) (Report, error) {
	selected, err := s.selectCollections(only)
	if err != nil {
		return Report{}, err
	}

	runLog := s.logger.With(zap.String("run_id", uuid.NewString()), zap.String("mode", string(mode)))
	ctx = logger.ContextWithLogger(ctx, runLog)
	runLog.Info("Pipeline started", zap.Int("collections", len(selected)), zap.String("data_dir", s.dataDir))

	if mode == ModeReset {
		s.reset(ctx, runLog, selected)
	}

	report := Report{Mode: mode}
	for _, c := range selected {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("run cancelled: %w", err)
		}
		cr := s.runCollection(ctx, mode, c)
		report.Collections = append(report.Collections, cr)
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("run cancelled: %w", err)
		}
	}

	runLog.Info("Pipeline finished",
		zap.Int("records_inserted", report.Inserted()),
		zap.Int("collections_failed", report.FailedCollections()),
	)
	return report, nil
}

func (s *Service) selectCollections(only []string) ([]Collection, error) {
	if len(only) == 0 {
		return s.collections, nil
	}
	out := make([]Collection, 0, len(only))
	for _, c := range s.collections {
		if slices.Contains(only, c.Name) {
			out = append(out, c)
		}
	}
	if len(out) != len(only) {
		known := make([]string, len(s.collections))
		for i, c := range s.collections {
			known[i] = c.Name
		}
		return nil, fmt.Errorf("unknown collection in %v (configured: %s)", only, strings.Join(known, ", "))
	}
	return out, nil
}

func (s *Service) reset(ctx context.Context, log *zap.Logger, cols []Collection) {
	for _, c := range cols {
		if err := s.deps.Store.DropCollection(ctx, c.Name); err != nil {
			log.Warn("Drop collection failed", zap.String("collection", c.Name), zap.Error(err))
		} else {
			log.Info("Collection dropped", zap.String("collection", c.Name))
		}
		if s.deps.Ledger != nil {
			if err := s.deps.Ledger.Reset(ctx, c.Name); err != nil {
				log.Warn("Ledger reset failed", zap.String("collection", c.Name), zap.Error(err))
			}
		}
	}
}

// collectionRun holds per-collection state across files.
type collectionRun struct {
	c       Collection
	mode    Mode
	report  *CollectionReport
	ensured bool
	log     *zap.Logger
}

func (s *Service) runCollection(ctx context.Context, mode Mode, c Collection) CollectionReport {
	ctx, log := logger.With(ctx, zap.String("collection", c.Name))
	cr := CollectionReport{Name: c.Name}
	log.Info("Processing collection")

	root := s.dataDir
	if c.SubDir != "" {
		root = filepath.Join(s.dataDir, c.SubDir)
	}
	files, err := FindFiles(root, c.Patterns)
	if err != nil {
		log.Error("Scanning data directory failed", zap.String("root", root), zap.Error(err))
		cr.Err = err
		return cr
	}
	cr.FilesMatched = len(files)
	if len(files) == 0 {
		log.Warn("No matching XML files", zap.String("root", root), zap.Strings("patterns", c.Patterns))
		return cr
	}
	log.Info("Matched XML files", zap.Int("files", len(files)))

	run := &collectionRun{c: c, mode: mode, report: &cr, log: log}

	prog := s.deps.Progress
	if prog != nil {
		prog.Start(c.Name, len(files))
		defer prog.Finish()
	}

	for _, rel := range files {
		if ctx.Err() != nil {
			break
		}
		abandon := s.processFile(ctx, run, root, rel)
		if prog != nil {
			prog.Increment()
		}
		if abandon {
			break
		}
	}

	log.Info("Collection finished",
		zap.Int("files_processed", cr.FilesProcessed),
		zap.Int("files_failed", cr.FilesFailed),
		zap.Int("files_unchanged", cr.FilesUnchanged),
		zap.Int("records_inserted", cr.RecordsInserted),
	)
	return cr
}

// processFile handles one file. It returns true when the collection must be abandoned.
func (s *Service) processFile(ctx context.Context, run *collectionRun, root, rel string) bool {
	c, cr := run.c, run.report
	log := run.log.With(zap.String("file", rel))
	full := filepath.Join(root, filepath.FromSlash(rel))

	digest := ""
	if s.deps.Ledger != nil && s.deps.Digest != nil {
		d, err := s.deps.Digest(full)
		if err != nil {
			log.Error("Hashing file failed", zap.Error(err))
			s.fileFailed(cr, c.Name)
			return false
		}
		digest = d
		if run.mode == ModeIncremental {
			unchanged, err := s.deps.Ledger.Unchanged(ctx, c.Name, rel, digest)
			if err != nil {
				log.Warn("Ledger lookup failed", zap.Error(err))
			}
			if unchanged {
				log.Info("File unchanged, skipping")
				cr.FilesUnchanged++
				metrics.FilesTotal.WithLabelValues(c.Name, "unchanged").Inc()
				return false
			}
		}
	}

	log.Info("Processing file")
	var records []record.Record
	src := extract.Source{Path: full, Rel: rel, Collection: c.Name}
	for rec, err := range s.deps.Extractor.Records(ctx, src) {
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			log.Error("File discarded", zap.Int("records_discarded", len(records)), zap.Error(err))
			s.fileFailed(cr, c.Name)
			return false
		}
		records = append(records, rec)
	}
	cr.RecordsExtracted += len(records)
	metrics.RecordsExtractedTotal.WithLabelValues(c.Name).Add(float64(len(records)))

	if len(records) == 0 {
		log.Warn("No records in file")
		cr.FilesProcessed++
		metrics.FilesTotal.WithLabelValues(c.Name, "processed").Inc()
		s.remember(ctx, log, c.Name, rel, digest, 0)
		return false
	}

	if !run.ensured {
		out, err := s.deps.Negotiator.Ensure(ctx, schemauc.Target{
			Name:        c.Name,
			VectorField: c.VectorField,
			Dim:         c.Dim,
			Fields:      c.Fields,
		})
		cr.Schema = out
		if err != nil {
			log.Error("Collection abandoned", zap.Int("attempts", out.Attempts), zap.Error(err))
			cr.Err = err
			s.fileFailed(cr, c.Name)
			return true
		}
		run.ensured = true
	}

	res := s.deps.Upserter.Upsert(ctx, c.Name, records)
	cr.RecordsInserted += res.Inserted
	cr.RecordsSkipped += res.Skipped
	cr.Batches += res.Batches
	cr.FailedBatches += res.FailedBatches
	cr.FilesProcessed++
	metrics.FilesTotal.WithLabelValues(c.Name, "processed").Inc()

	log.Info("File stored",
		zap.Int("records", len(records)),
		zap.Int("inserted", res.Inserted),
		zap.Int("failed_batches", res.FailedBatches),
	)
	if res.FailedBatches == 0 && ctx.Err() == nil {
		s.remember(ctx, log, c.Name, rel, digest, res.Inserted)
	}
	return false
}

func (s *Service) fileFailed(cr *CollectionReport, collection string) {
	cr.FilesFailed++
	metrics.FilesTotal.WithLabelValues(collection, "failed").Inc()
}

func (s *Service) remember(ctx context.Context, log *zap.Logger, collection, rel, digest string, n int) {
	if s.deps.Ledger == nil || digest == "" {
		return
	}
	if err := s.deps.Ledger.Record(ctx, collection, rel, digest, n); err != nil {
		log.Warn("Ledger update failed", zap.Error(err))
	}
}

// FindFiles lists *.xml files under root, recursively and sorted, whose base name (or, for
// patterns containing a slash, whose slash-separated relative path) matches any pattern.
func FindFiles(root string, patterns []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", root)
	}

	all, err := doublestar.Glob(os.DirFS(root), "**/*.xml", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	var out []string
	for _, rel := range all {
		ok, err := matchAny(patterns, rel)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rel)
		}
	}
	slices.Sort(out)
	return out, nil
}

func matchAny(patterns []string, rel string) (bool, error) {
	base := path.Base(rel)
	for _, p := range patterns {
		target := base
		if strings.Contains(p, "/") {
			target = rel
		}
		ok, err := doublestar.Match(p, target)
		if err != nil {
			return false, fmt.Errorf("pattern %q: %w", p, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
