// Package harness wires the stress driver, collection monitor, log
// pipeline and reporter into one run.
//
// Setup failures (server unreachable, collection cannot be created) are
// fatal and abort before any loop starts. Once the loops are running,
// every failure is absorbed into the aggregator; the run ends when the
// stress window elapses or the context is cancelled, and a final report
// is always printed.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/oasisdb/compact-harness/external"
	"github.com/oasisdb/compact-harness/internal/classify"
	"github.com/oasisdb/compact-harness/internal/config"
	"github.com/oasisdb/compact-harness/internal/monitor"
	"github.com/oasisdb/compact-harness/internal/report"
	"github.com/oasisdb/compact-harness/internal/stats"
	"github.com/oasisdb/compact-harness/internal/stress"
	"github.com/oasisdb/compact-harness/internal/tailer"
)

// Service is the full slice of the OasisDB API the harness consumes.
type Service interface {
	stress.Service
	monitor.Service
	HealthCheck(ctx context.Context) error
	CreateCollection(ctx context.Context, name string, dimension int, indexType string, parameters map[string]string) error
	DeleteCollection(ctx context.Context, name string) error
	CountDocuments(ctx context.Context, collection string) (int, error)
}

// Harness owns one full stress-and-observe run.
type Harness struct {
	svc      Service
	cfg      *config.Config
	agg      *stats.Aggregator
	reporter *report.Reporter
	runID    string
}

// New creates a Harness reporting to out.
func New(svc Service, cfg *config.Config, out io.Writer) *Harness {
	return &Harness{
		svc:      svc,
		cfg:      cfg,
		agg:      stats.New(),
		reporter: report.New(out),
		runID:    uuid.NewString(),
	}
}

// RunID identifies this harness run; it is stamped into every synthetic
// document's metadata.
func (h *Harness) RunID() string { return h.runID }

// Aggregator exposes the run's statistics, mainly for tests.
func (h *Harness) Aggregator() *stats.Aggregator { return h.agg }

// Setup prepares the target collection. Any failure here is fatal: the
// harness must not start its loops against a half-configured server.
func (h *Harness) Setup(ctx context.Context) error {
	if err := h.svc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	name := h.cfg.Service.Collection

	// A stale collection from an aborted run is expected; only log it.
	if err := h.svc.DeleteCollection(ctx, name); err != nil {
		var apiErr *external.APIError
		if !errors.As(err, &apiErr) {
			return fmt.Errorf("delete stale collection: %w", err)
		}
		log.Debug().Int("status", apiErr.StatusCode).Msg("no stale collection to delete")
	} else {
		log.Info().Str("collection", name).Msg("deleted stale collection")
	}

	if err := h.svc.CreateCollection(ctx, name, h.cfg.Service.Dimension, h.cfg.Service.IndexType, nil); err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}

	info, err := h.svc.GetCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("verify collection %q: %w", name, err)
	}
	log.Info().
		Str("collection", info.Name).
		Int("dimension", info.Dimension).
		Str("run_id", h.runID).
		Msg("collection ready")
	return nil
}

// Run executes the stress window. It blocks until the window elapses or
// ctx is cancelled, then renders the final report. Steady-state service
// failures never surface here.
func (h *Harness) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tl := tailer.New(h.cfg.Log.Path)
	mon := monitor.New(h.svc, h.agg, h.cfg.Service.Collection, h.cfg.Monitor.Interval)
	drv := stress.New(h.svc, h.agg, stress.Config{
		Collection:    h.cfg.Service.Collection,
		Dimension:     h.cfg.Service.Dimension,
		RunID:         h.runID,
		Duration:      h.cfg.Stress.Duration,
		BatchSize:     h.cfg.Stress.BatchSize,
		BatchInterval: h.cfg.Stress.BatchInterval,
		ProbePause:    h.cfg.Stress.ProbePause,
		SearchLimit:   h.cfg.Stress.SearchLimit,
	})

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// The stress window defines the run length: when it ends, wind
		// down every other loop.
		defer cancel()
		return drv.Run(gctx)
	})
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return tl.Run(gctx) })
	g.Go(func() error {
		classifyLines(tl.Lines(), h.agg)
		return nil
	})
	g.Go(func() error { return h.reporter.Run(gctx, h.agg, h.cfg.Report.Interval) })

	err := g.Wait()

	h.finalReport()
	return err
}

// classifyLines drains the tailer into the aggregator. Returns when the
// line channel closes.
func classifyLines(lines <-chan string, agg *stats.Aggregator) {
	for line := range lines {
		agg.RecordEvent(classify.Classify(line))
	}
}

// finalReport renders the closing summary, with a best-effort document
// count straight from the server.
func (h *Harness) finalReport() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if n, err := h.svc.CountDocuments(ctx, h.cfg.Service.Collection); err == nil {
		log.Info().Int("count", n).Msg("documents in collection at end of run")
	} else {
		log.Warn().Err(err).Msg("final document count unavailable")
	}

	h.reporter.Render(h.agg.Snapshot())

	snap := h.agg.Snapshot()
	failures := snap.Counter(stats.CounterGetCollectionFailure)
	if failures > 0 {
		log.Warn().
			Int64("failures", failures).
			Msg("get collection failures occurred during the run, check the server log for compact-related errors")
	} else {
		log.Info().Msg("no get collection failures detected during the run")
	}
}
