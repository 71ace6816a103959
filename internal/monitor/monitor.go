// Package monitor polls collection metadata while the stress driver
// runs, recording availability and latency of GetCollection.
//
// A compaction pass that blocks reads shows up here first: the poll
// fails or slows down while the write loop keeps hammering the server.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oasisdb/compact-harness/external"
	"github.com/oasisdb/compact-harness/internal/stats"
)

// Service is the slice of the OasisDB API the monitor uses.
type Service interface {
	GetCollection(ctx context.Context, name string) (external.CollectionInfo, error)
}

// Monitor polls one collection at a fixed interval.
type Monitor struct {
	svc        Service
	agg        *stats.Aggregator
	collection string
	interval   time.Duration
}

// New creates a Monitor feeding the given aggregator.
func New(svc Service, agg *stats.Aggregator, collection string, interval time.Duration) *Monitor {
	return &Monitor{svc: svc, agg: agg, collection: collection, interval: interval}
}

// Run blocks until ctx is cancelled. Poll failures are recorded and
// absorbed; the returned error is always nil.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().
		Str("collection", m.collection).
		Dur("interval", m.interval).
		Msg("collection monitor starting")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.poll(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("collection monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	start := time.Now()
	info, err := m.svc.GetCollection(ctx, m.collection)
	took := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown race, not a service failure.
			return
		}
		m.agg.Increment(stats.CounterGetCollectionFailure)
		m.agg.RecordError(stats.ErrorRecord{
			Kind:    "get_collection_failure",
			Message: err.Error(),
			Context: m.collection,
		})
		log.Error().Err(err).Dur("took", took).Msg("get collection failed")
		return
	}

	m.agg.Increment(stats.CounterGetCollectionSuccess)
	m.agg.ObserveGetLatency(took)
	log.Debug().
		Str("collection", info.Name).
		Dur("took", took).
		Msg("get collection ok")
}
