// Package upsert writes prepared records to the vector store in bounded batches.
package upsert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/domain/record"
	"github.com/kailas-cloud/mastrvec/internal/metrics"
)

// DefaultBatchSize is the number of records per insert call.
const DefaultBatchSize = 1000

// Config tunes batching.
type Config struct {
	BatchSize int
	// Dimension is the expected vector length; <= 0 disables the length check.
	Dimension int
	// Workers > 1 submits batches concurrently through a worker pool.
	Workers int
}

// Result summarises one Upsert call.
type Result struct {
	Attempted     int
	Inserted      int
	Skipped       int
	Batches       int
	FailedBatches int
}

// Service splits records into batches and submits each independently.
type Service struct {
	store     Inserter
	batchSize int
	dim       int
	pool      *ants.Pool
	logger    *zap.Logger
}

// New creates an upsert service. Call Release when done if Workers > 1.
func New(store Inserter, cfg Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	s := &Service{store: store, batchSize: size, dim: cfg.Dimension, logger: logger}
	if cfg.Workers > 1 {
		pool, err := ants.NewPool(cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("insert worker pool: %w", err)
		}
		s.pool = pool
	}
	return s, nil
}

// Release stops the worker pool.
func (s *Service) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Upsert filters out records with unusable vectors, then inserts the rest in order-preserving
// batches. A failed batch is logged and skipped; later batches still run.
func (s *Service) Upsert(ctx context.Context, collection string, records []record.Record) Result {
	log := s.logger.With(zap.String("collection", collection))
	res := Result{Attempted: len(records)}

	valid := make([]record.Record, 0, len(records))
	for i := range records {
		if problem := records[i].VectorProblem(s.dim); problem != "" {
			log.Warn("Skipping record", zap.Int64("id", records[i].ID), zap.String("reason", problem))
			metrics.RecordsSkippedTotal.WithLabelValues(collection, problem).Inc()
			res.Skipped++
			continue
		}
		valid = append(valid, records[i])
	}
	if len(valid) == 0 {
		if len(records) > 0 {
			log.Warn("No valid records to insert", zap.Int("attempted", len(records)))
		}
		return res
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for start := 0; start < len(valid); start += s.batchSize {
		if ctx.Err() != nil {
			log.Warn("Upsert cancelled", zap.Int("remaining", len(valid)-start))
			break
		}
		end := min(start+s.batchSize, len(valid))
		batch := valid[start:end]
		num := start/s.batchSize + 1
		res.Batches++

		run := func() {
			n, err := s.insertBatch(ctx, log, collection, num, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedBatches++
				return
			}
			res.Inserted += n
		}

		if s.pool == nil {
			run()
			continue
		}
		wg.Add(1)
		if err := s.pool.Submit(func() { defer wg.Done(); run() }); err != nil {
			wg.Done()
			run()
		}
	}
	wg.Wait()

	log.Info("Upsert finished",
		zap.Int("attempted", res.Attempted),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("batches", res.Batches),
		zap.Int("failed_batches", res.FailedBatches),
	)
	return res
}

func (s *Service) insertBatch(
	ctx context.Context, log *zap.Logger, collection string, num int, batch []record.Record,
) (int, error) {
	start := time.Now()
	n, err := s.store.Insert(ctx, collection, batch)
	metrics.BatchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.BatchesTotal.WithLabelValues(collection, "error").Inc()
		log.Error("Batch insert failed",
			zap.Int("batch", num),
			zap.Int("size", len(batch)),
			zap.Error(err),
		)
		return 0, err
	}

	metrics.BatchesTotal.WithLabelValues(collection, "ok").Inc()
	metrics.RecordsInsertedTotal.WithLabelValues(collection).Add(float64(n))
	log.Debug("Batch inserted", zap.Int("batch", num), zap.Int("size", len(batch)), zap.Int("inserted", n))
	return n, nil
}
