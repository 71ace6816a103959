// Package stress generates sustained batched write load against an
// OasisDB collection to provoke LSM compaction, with a search probe
// after each successful batch.
//
// Failures are data, not control flow: a failed batch or probe becomes
// an ErrorRecord in the aggregator and the loop moves on. Only the
// configured duration or context cancellation ends the run.
package stress

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oasisdb/compact-harness/external"
	"github.com/oasisdb/compact-harness/internal/stats"
)

// Service is the slice of the OasisDB API the driver exercises.
type Service interface {
	BatchUpsertDocuments(ctx context.Context, collection string, docs []external.Document) error
	SearchVectors(ctx context.Context, collection string, vector []float32, limit int) (external.SearchResult, error)
}

// Config shapes one stress run.
type Config struct {
	Collection    string
	Dimension     int
	RunID         string
	Duration      time.Duration
	BatchSize     int
	BatchInterval time.Duration // pause between batches
	ProbePause    time.Duration // settle time before the search probe
	SearchLimit   int
	Seed          int64 // 0 means time-based
}

// Driver runs the write-load loop.
type Driver struct {
	svc Service
	agg *stats.Aggregator
	cfg Config
	gen *generator
}

// New creates a Driver feeding the given aggregator.
func New(svc Service, agg *stats.Aggregator, cfg Config) *Driver {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Driver{
		svc: svc,
		agg: agg,
		cfg: cfg,
		gen: newGenerator(cfg.Dimension, cfg.RunID, seed),
	}
}

// Run blocks until the configured duration elapses or ctx is cancelled.
// Accumulated errors never terminate the loop; the returned error is
// always nil and exists to satisfy errgroup.
func (d *Driver) Run(ctx context.Context) error {
	log.Info().
		Str("collection", d.cfg.Collection).
		Int("batch_size", d.cfg.BatchSize).
		Dur("duration", d.cfg.Duration).
		Msg("stress driver starting")

	deadline := time.Now().Add(d.cfg.Duration)
	batch := 0

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			log.Info().Int("batches", batch).Msg("stress driver stopped")
			return nil
		default:
		}

		batch++
		if d.runBatch(ctx, batch) {
			// Settle, then probe reads against the fresh data.
			if !sleepCtx(ctx, d.cfg.ProbePause) {
				continue
			}
			d.probe(ctx)
		}

		if batch%5 == 0 {
			d.logProgress(batch)
		}
		sleepCtx(ctx, d.cfg.BatchInterval)
	}

	log.Info().Int("batches", batch).Msg("stress window elapsed")
	return nil
}

// runBatch inserts one batch. Returns true on success.
func (d *Driver) runBatch(ctx context.Context, batch int) bool {
	docs := d.gen.batch(d.cfg.BatchSize)

	start := time.Now()
	err := d.svc.BatchUpsertDocuments(ctx, d.cfg.Collection, docs)
	took := time.Since(start)

	if err != nil {
		log.Error().Err(err).Int("batch", batch).Msg("batch insert failed")
		d.gen.rewind(d.cfg.BatchSize)
		d.agg.RecordError(stats.ErrorRecord{
			Kind:    "insert_failure",
			Message: err.Error(),
			Context: d.cfg.Collection,
		})
		return false
	}

	d.agg.Add(stats.CounterDocumentsInserted, int64(d.cfg.BatchSize))
	log.Debug().
		Int("batch", batch).
		Int("documents", d.cfg.BatchSize).
		Dur("took", took).
		Msg("batch inserted")
	return true
}

// probe issues one nearest-neighbor search with a random query vector.
func (d *Driver) probe(ctx context.Context) {
	res, err := d.svc.SearchVectors(ctx, d.cfg.Collection, d.gen.randomVector(), d.cfg.SearchLimit)
	if err != nil {
		log.Warn().Err(err).Msg("search probe failed")
		d.agg.RecordError(stats.ErrorRecord{
			Kind:    "search_failure",
			Message: err.Error(),
			Context: d.cfg.Collection,
		})
		return
	}
	log.Debug().Int("results", len(res.IDs)).Msg("search probe completed")
}

func (d *Driver) logProgress(batch int) {
	snap := d.agg.Snapshot()
	log.Info().
		Int("batch", batch).
		Int64("documents_inserted", snap.Counter(stats.CounterDocumentsInserted)).
		Int("errors", len(snap.Errors)).
		Msg("stress progress")
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
