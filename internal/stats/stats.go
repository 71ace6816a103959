// Package stats is the single point of truth for everything the harness
// counts. Stress, monitor and log-classification loops all feed one
// Aggregator; the reporter reads it through Snapshot.
//
// Counters are monotonic for the lifetime of a run and exact under
// concurrent increments. Event and error histories are bounded rings, so
// a multi-hour run cannot grow memory without limit.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/oasisdb/compact-harness/internal/classify"
	"github.com/oasisdb/compact-harness/internal/ringbuf"
)

// Harness-side counter names. Log-side counters are derived from
// categories and levels (see CounterFor and IncrementLevel).
const (
	CounterDocumentsInserted    = "documents_inserted"
	CounterGetCollectionSuccess = "get_collection_success"
	CounterGetCollectionFailure = "get_collection_failures"
	CounterCompactTriggers      = "compact_triggers"
	CounterTotalErrors          = "total_errors"
	CounterCompactEvents        = "compact_events"
	CounterCompactStarted       = "compact_started"
	CounterCompactCompleted     = "compact_completed"
	CounterCompactTriggered     = "compact_triggered"
	CounterLogGetSuccess        = "log_get_collection_success"
	CounterLogGetErrors         = "log_get_collection_errors"
	CounterLsmOperations        = "lsm_operations"
	CounterUnparsedLines        = "unparsed_lines"
)

// Ring capacities, matching how much history a human wants in a report.
const (
	compactEventCap  = 100
	getEventCap      = 100
	classifiedErrCap = 50
	errorRecordCap   = 50
)

// ErrorRecord captures one absorbed failure from any loop.
type ErrorRecord struct {
	Timestamp time.Time
	Kind      string // insert_failure, search_failure, get_collection_failure
	Message   string
	Context   string // doc id or collection name, when known
}

// LatencySummary holds quantiles of observed get-collection latencies.
type LatencySummary struct {
	Count int64
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Snapshot is an immutable copy of the aggregator state. Each field is
// copied atomically with respect to writers; the snapshot as a whole is
// not a global freeze, which is fine for reporting.
type Snapshot struct {
	Started        time.Time
	Counters       map[string]int64
	CompactEvents  []classify.Event
	GetEvents      []classify.Event
	ClassifiedErrs []classify.Event
	Errors         []ErrorRecord
	GetLatency     LatencySummary
}

// Counter returns a named counter, 0 when never incremented.
func (s Snapshot) Counter(name string) int64 {
	return s.Counters[name]
}

// SuccessRate computes success/(success+failure)*100, defined as 0 when
// neither has been observed.
func SuccessRate(success, failure int64) float64 {
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total) * 100
}

// Aggregator owns all shared mutable state of a run.
type Aggregator struct {
	started time.Time

	countersMu sync.RWMutex
	counters   map[string]*atomic.Int64

	compactEvents  *ringbuf.Ring[classify.Event]
	getEvents      *ringbuf.Ring[classify.Event]
	classifiedErrs *ringbuf.Ring[classify.Event]
	errors         *ringbuf.Ring[ErrorRecord]

	latMu     sync.Mutex
	latSketch *ddsketch.DDSketch
	latCount  int64
	latMax    time.Duration
}

// New creates an empty Aggregator.
func New() *Aggregator {
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		// The default constructor only fails on invalid accuracy.
		panic(err)
	}
	return &Aggregator{
		started:        time.Now(),
		counters:       make(map[string]*atomic.Int64),
		compactEvents:  ringbuf.New[classify.Event](compactEventCap),
		getEvents:      ringbuf.New[classify.Event](getEventCap),
		classifiedErrs: ringbuf.New[classify.Event](classifiedErrCap),
		errors:         ringbuf.New[ErrorRecord](errorRecordCap),
		latSketch:      sketch,
	}
}

func (a *Aggregator) counter(name string) *atomic.Int64 {
	a.countersMu.RLock()
	c, ok := a.counters[name]
	a.countersMu.RUnlock()
	if ok {
		return c
	}

	a.countersMu.Lock()
	defer a.countersMu.Unlock()
	if c, ok = a.counters[name]; ok {
		return c
	}
	c = new(atomic.Int64)
	a.counters[name] = c
	return c
}

// Increment adds 1 to a named counter.
func (a *Aggregator) Increment(name string) {
	a.counter(name).Add(1)
}

// Add adds n to a named counter.
func (a *Aggregator) Add(name string, n int64) {
	a.counter(name).Add(n)
}

// IncrementLevel bumps the per-level line counter for a parsed entry.
func (a *Aggregator) IncrementLevel(level classify.Level) {
	name := "log_level_unknown"
	switch level {
	case classify.LevelDebug:
		name = "log_level_debug"
	case classify.LevelInfo:
		name = "log_level_info"
	case classify.LevelWarn:
		name = "log_level_warn"
	case classify.LevelError:
		name = "log_level_error"
	}
	a.Increment(name)
}

// RecordEvent routes a classified event into the counters and history
// rings for every category it carries.
func (a *Aggregator) RecordEvent(ev classify.Event) {
	for _, cat := range ev.Categories {
		switch cat {
		case classify.CompactGeneric:
			a.Increment(CounterCompactEvents)
			a.compactEvents.Push(ev)
		case classify.CompactStarted:
			a.Increment(CounterCompactStarted)
		case classify.CompactCompleted:
			a.Increment(CounterCompactCompleted)
		case classify.CompactTriggered:
			a.Increment(CounterCompactTriggered)
			a.Increment(CounterCompactTriggers)
		case classify.CollectionGetSuccess:
			a.Increment(CounterLogGetSuccess)
			a.getEvents.Push(ev)
		case classify.CollectionGetError:
			a.Increment(CounterLogGetErrors)
			a.getEvents.Push(ev)
		case classify.LsmOperation:
			a.Increment(CounterLsmOperations)
		case classify.GenericError:
			a.Increment(CounterTotalErrors)
			a.classifiedErrs.Push(ev)
		case classify.Unparsed:
			a.Increment(CounterUnparsedLines)
		}
	}
	if !ev.Has(classify.Unparsed) {
		a.IncrementLevel(ev.Entry.Level)
	}
}

// RecordError appends an absorbed failure to the bounded error history.
func (a *Aggregator) RecordError(rec ErrorRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	a.errors.Push(rec)
}

// ObserveGetLatency feeds one timed GetCollection call into the sketch.
func (a *Aggregator) ObserveGetLatency(d time.Duration) {
	a.latMu.Lock()
	defer a.latMu.Unlock()
	// Sketch stores milliseconds; Add only fails on negative values.
	_ = a.latSketch.Add(float64(d) / float64(time.Millisecond))
	a.latCount++
	if d > a.latMax {
		a.latMax = d
	}
}

// ErrorCount returns the number of currently buffered ErrorRecords.
func (a *Aggregator) ErrorCount() int {
	return a.errors.Len()
}

// Snapshot copies the aggregator state for reporting.
func (a *Aggregator) Snapshot() Snapshot {
	a.countersMu.RLock()
	counters := make(map[string]int64, len(a.counters))
	for name, c := range a.counters {
		counters[name] = c.Load()
	}
	a.countersMu.RUnlock()

	snap := Snapshot{
		Started:        a.started,
		Counters:       counters,
		CompactEvents:  a.compactEvents.Snapshot(),
		GetEvents:      a.getEvents.Snapshot(),
		ClassifiedErrs: a.classifiedErrs.Snapshot(),
		Errors:         a.errors.Snapshot(),
	}

	a.latMu.Lock()
	defer a.latMu.Unlock()
	snap.GetLatency = LatencySummary{Count: a.latCount, Max: a.latMax}
	if a.latCount > 0 {
		if p50, err := a.latSketch.GetValueAtQuantile(0.50); err == nil {
			snap.GetLatency.P50 = time.Duration(p50 * float64(time.Millisecond))
		}
		if p95, err := a.latSketch.GetValueAtQuantile(0.95); err == nil {
			snap.GetLatency.P95 = time.Duration(p95 * float64(time.Millisecond))
		}
		if p99, err := a.latSketch.GetValueAtQuantile(0.99); err == nil {
			snap.GetLatency.P99 = time.Duration(p99 * float64(time.Millisecond))
		}
	}
	return snap
}
