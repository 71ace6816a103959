// Package report renders aggregator snapshots for humans.
//
// The reporter is strictly read-only: it takes a Snapshot and writes a
// summary, never touching aggregator state. Interim reports run on a
// timer; the final report is printed once on shutdown.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/oasisdb/compact-harness/internal/stats"
)

// How much recent history a report shows.
const (
	recentCompactEvents = 5
	recentLogErrors     = 3
	recentHarnessErrors = 10
)

const (
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

// Reporter renders snapshots to one writer.
type Reporter struct {
	w     io.Writer
	color bool
}

// New creates a Reporter. ANSI styling is enabled only when w is a
// terminal.
func New(w io.Writer) *Reporter {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Reporter{w: w, color: color}
}

func (r *Reporter) section(title string) {
	if r.color {
		fmt.Fprintf(r.w, "\n%s%s%s\n", ansiBold, title, ansiReset)
		return
	}
	fmt.Fprintf(r.w, "\n%s\n", title)
}

// FormatRate renders success/(success+failure)*100 as "NN.NN%", with
// "0%" when nothing has been observed yet.
func FormatRate(success, failure int64) string {
	if success+failure == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", stats.SuccessRate(success, failure))
}

// Render writes one full report for the given snapshot.
func (r *Reporter) Render(snap stats.Snapshot) {
	fmt.Fprintf(r.w, "\n============================================================\n")
	fmt.Fprintf(r.w, "HARNESS REPORT (elapsed %s)\n", time.Since(snap.Started).Round(time.Second))
	fmt.Fprintf(r.w, "============================================================\n")

	r.section("Stress / monitor:")
	fmt.Fprintf(r.w, "  Documents inserted:       %d\n", snap.Counter(stats.CounterDocumentsInserted))
	gcOK := snap.Counter(stats.CounterGetCollectionSuccess)
	gcFail := snap.Counter(stats.CounterGetCollectionFailure)
	fmt.Fprintf(r.w, "  Get collection success:   %d\n", gcOK)
	fmt.Fprintf(r.w, "  Get collection failures:  %d\n", gcFail)
	fmt.Fprintf(r.w, "  Get collection rate:      %s\n", FormatRate(gcOK, gcFail))
	if snap.GetLatency.Count > 0 {
		fmt.Fprintf(r.w, "  Get latency p50/p95/p99:  %s / %s / %s (max %s)\n",
			snap.GetLatency.P50.Round(time.Microsecond),
			snap.GetLatency.P95.Round(time.Microsecond),
			snap.GetLatency.P99.Round(time.Microsecond),
			snap.GetLatency.Max.Round(time.Microsecond))
	}
	fmt.Fprintf(r.w, "  Recorded errors:          %d\n", len(snap.Errors))

	r.section("Log levels:")
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		if n := snap.Counter("log_level_" + level); n > 0 {
			fmt.Fprintf(r.w, "  %-8s %d\n", level, n)
		}
	}
	if n := snap.Counter(stats.CounterUnparsedLines); n > 0 {
		fmt.Fprintf(r.w, "  unparsed %d\n", n)
	}

	r.section("Compact operations:")
	fmt.Fprintf(r.w, "  Events:     %d\n", snap.Counter(stats.CounterCompactEvents))
	fmt.Fprintf(r.w, "  Started:    %d\n", snap.Counter(stats.CounterCompactStarted))
	fmt.Fprintf(r.w, "  Completed:  %d\n", snap.Counter(stats.CounterCompactCompleted))
	fmt.Fprintf(r.w, "  Triggered:  %d\n", snap.Counter(stats.CounterCompactTriggered))

	r.section("Collection operations (from log):")
	logOK := snap.Counter(stats.CounterLogGetSuccess)
	logErr := snap.Counter(stats.CounterLogGetErrors)
	fmt.Fprintf(r.w, "  Get success: %d\n", logOK)
	fmt.Fprintf(r.w, "  Get errors:  %d\n", logErr)
	fmt.Fprintf(r.w, "  Rate:        %s\n", FormatRate(logOK, logErr))

	r.section("Errors:")
	fmt.Fprintf(r.w, "  Total log errors: %d\n", snap.Counter(stats.CounterTotalErrors))
	fmt.Fprintf(r.w, "  LSM operations:   %d\n", snap.Counter(stats.CounterLsmOperations))

	if events := tail(snap.CompactEvents, recentCompactEvents); len(events) > 0 {
		r.section(fmt.Sprintf("Recent compact events (last %d):", len(events)))
		for _, ev := range events {
			fmt.Fprintf(r.w, "  [%s] %s\n", ev.Entry.Timestamp, ev.Entry.Message)
		}
	}

	if errs := tail(snap.ClassifiedErrs, recentLogErrors); len(errs) > 0 {
		r.section(fmt.Sprintf("Recent log errors (last %d):", len(errs)))
		for _, ev := range errs {
			fmt.Fprintf(r.w, "  [%s] %s\n", ev.Entry.Timestamp, ev.Entry.Message)
		}
	}

	if recs := tail(snap.Errors, recentHarnessErrors); len(recs) > 0 {
		r.section(fmt.Sprintf("Recent harness errors (last %d):", len(recs)))
		for i, rec := range recs {
			fmt.Fprintf(r.w, "  %d. [%s] %s: %s\n",
				i+1, rec.Timestamp.Format("15:04:05"), rec.Kind, rec.Message)
		}
	}
	fmt.Fprintln(r.w)
}

// Run renders an interim report every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, agg *stats.Aggregator, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Render(agg.Snapshot())
		}
	}
}

// tail returns the last n elements of s.
func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
