package report_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasisdb/compact-harness/internal/classify"
	"github.com/oasisdb/compact-harness/internal/report"
	"github.com/oasisdb/compact-harness/internal/stats"
)

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "97.00%", report.FormatRate(97, 3))
	assert.Equal(t, "0%", report.FormatRate(0, 0))
	assert.Equal(t, "100.00%", report.FormatRate(12, 0))
	assert.Equal(t, "0.00%", report.FormatRate(0, 4))
}

func TestRender_IncludesCountsAndRates(t *testing.T) {
	agg := stats.New()
	agg.Add(stats.CounterDocumentsInserted, 5000)
	for i := 0; i < 97; i++ {
		agg.Increment(stats.CounterGetCollectionSuccess)
	}
	for i := 0; i < 3; i++ {
		agg.Increment(stats.CounterGetCollectionFailure)
	}
	agg.RecordEvent(classify.Classify(`{"level":"INFO","msg":"compact starting","ts":"10:00:01"}`))
	agg.RecordEvent(classify.Classify(`{"level":"ERROR","msg":"compact failed","ts":"10:00:02"}`))
	agg.RecordError(stats.ErrorRecord{Kind: "insert_failure", Message: "HTTP 500"})

	var buf bytes.Buffer
	report.New(&buf).Render(agg.Snapshot())
	out := buf.String()

	assert.Contains(t, out, "Documents inserted:       5000")
	assert.Contains(t, out, "Get collection rate:      97.00%")
	assert.Contains(t, out, "compact starting")
	assert.Contains(t, out, "insert_failure: HTTP 500")
	assert.Contains(t, out, "Total log errors: 1")
	// Plain writer gets no ANSI escapes.
	assert.NotContains(t, out, "\033[")
}

func TestRender_ZeroRateWhenNothingObserved(t *testing.T) {
	var buf bytes.Buffer
	report.New(&buf).Render(stats.New().Snapshot())

	assert.Contains(t, buf.String(), "Get collection rate:      0%")
	assert.Contains(t, buf.String(), "Rate:        0%")
}

func TestRender_LimitsRecentHistory(t *testing.T) {
	agg := stats.New()
	for i := 0; i < 20; i++ {
		agg.RecordEvent(classify.Classify(`{"level":"INFO","msg":"compact pass","ts":"t"}`))
	}

	var buf bytes.Buffer
	report.New(&buf).Render(agg.Snapshot())

	assert.Contains(t, buf.String(), "Recent compact events (last 5):")
	assert.Equal(t, 5, bytes.Count(buf.Bytes(), []byte("compact pass")))
}

func TestRender_DoesNotMutateAggregator(t *testing.T) {
	agg := stats.New()
	agg.Increment("x")
	before := agg.Snapshot()

	var buf bytes.Buffer
	report.New(&buf).Render(agg.Snapshot())

	after := agg.Snapshot()
	assert.Equal(t, before.Counters, after.Counters)
}

func TestRun_EmitsPeriodicReports(t *testing.T) {
	agg := stats.New()
	var buf bytes.Buffer
	r := report.New(&buf)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx, agg, 20*time.Millisecond))

	assert.GreaterOrEqual(t, bytes.Count(buf.Bytes(), []byte("HARNESS REPORT")), 2)
}
