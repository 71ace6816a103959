package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasisdb/compact-harness/external"
	"github.com/oasisdb/compact-harness/internal/monitor"
	"github.com/oasisdb/compact-harness/internal/stats"
)

type fakeService struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeService) GetCollection(ctx context.Context, name string) (external.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return external.CollectionInfo{}, f.err
	}
	return external.CollectionInfo{Name: name, Dimension: 128}, nil
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func runFor(t *testing.T, m *monitor.Monitor, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d + time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitor_RecordsSuccessAndLatency(t *testing.T) {
	svc := &fakeService{}
	agg := stats.New()
	m := monitor.New(svc, agg, "compact_test", 5*time.Millisecond)

	runFor(t, m, 60*time.Millisecond)

	require.GreaterOrEqual(t, svc.callCount(), 2)
	snap := agg.Snapshot()
	assert.Equal(t, int64(svc.callCount()), snap.Counter(stats.CounterGetCollectionSuccess))
	assert.Zero(t, snap.Counter(stats.CounterGetCollectionFailure))
	assert.Equal(t, int64(svc.callCount()), snap.GetLatency.Count)
	assert.Empty(t, snap.Errors)
}

func TestMonitor_FailuresRecordedNeverFatal(t *testing.T) {
	svc := &fakeService{err: &external.APIError{StatusCode: 503, Message: "compact lock held"}}
	agg := stats.New()
	m := monitor.New(svc, agg, "compact_test", 5*time.Millisecond)

	runFor(t, m, 60*time.Millisecond)

	require.GreaterOrEqual(t, svc.callCount(), 2, "monitor must keep polling through failures")
	snap := agg.Snapshot()
	// The final poll may race shutdown and be discarded.
	failures := snap.Counter(stats.CounterGetCollectionFailure)
	assert.GreaterOrEqual(t, failures, int64(svc.callCount()-1))
	assert.LessOrEqual(t, failures, int64(svc.callCount()))
	assert.Zero(t, snap.Counter(stats.CounterGetCollectionSuccess))

	require.NotEmpty(t, snap.Errors)
	rec := snap.Errors[0]
	assert.Equal(t, "get_collection_failure", rec.Kind)
	assert.Contains(t, rec.Message, "compact lock held")
	assert.Equal(t, "compact_test", rec.Context)
}

func TestMonitor_StopsPromptly(t *testing.T) {
	svc := &fakeService{}
	m := monitor.New(svc, stats.New(), "compact_test", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop within one interval of cancellation")
	}
	// Exactly the initial poll happened despite the huge interval.
	assert.Equal(t, 1, svc.callCount())
}
