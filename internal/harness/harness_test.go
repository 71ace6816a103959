package harness_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasisdb/compact-harness/external"
	"github.com/oasisdb/compact-harness/internal/config"
	"github.com/oasisdb/compact-harness/internal/harness"
	"github.com/oasisdb/compact-harness/internal/stats"
)

// fakeOasis implements harness.Service in memory.
type fakeOasis struct {
	mu           sync.Mutex
	healthErr    error
	createErr    error
	getErr       error
	deleteCalled bool
	created      bool
	batches      int
	failEvery    int
	docs         int
	searches     int
	getCalls     int
}

func (f *fakeOasis) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeOasis) CreateCollection(ctx context.Context, name string, dimension int, indexType string, parameters map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = true
	return nil
}

func (f *fakeOasis) GetCollection(ctx context.Context, name string) (external.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return external.CollectionInfo{}, f.getErr
	}
	return external.CollectionInfo{Name: name, Dimension: 128}, nil
}

func (f *fakeOasis) DeleteCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalled = true
	return &external.APIError{StatusCode: 404, Message: "collection not found"}
}

func (f *fakeOasis) BatchUpsertDocuments(ctx context.Context, collection string, docs []external.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.failEvery > 0 && f.batches%f.failEvery == 0 {
		return &external.APIError{StatusCode: 500, Message: "compact lock"}
	}
	f.docs += len(docs)
	return nil
}

func (f *fakeOasis) SearchVectors(ctx context.Context, collection string, vector []float32, limit int) (external.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	return external.SearchResult{IDs: []string{"doc_000001"}}, nil
}

func (f *fakeOasis) CountDocuments(ctx context.Context, collection string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Service.Dimension = 4
	cfg.Stress.Duration = 150 * time.Millisecond
	cfg.Stress.BatchSize = 10
	cfg.Stress.BatchInterval = 5 * time.Millisecond
	cfg.Stress.ProbePause = 0
	cfg.Monitor.Interval = 10 * time.Millisecond
	cfg.Report.Interval = 50 * time.Millisecond
	cfg.Log.Path = filepath.Join(t.TempDir(), "oasisdb.log")
	return cfg
}

func TestSetup_HappyPath(t *testing.T) {
	svc := &fakeOasis{}
	h := harness.New(svc, testConfig(t), &bytes.Buffer{})

	require.NoError(t, h.Setup(context.Background()))
	assert.True(t, svc.created)
	assert.True(t, svc.deleteCalled)
	assert.NotEmpty(t, h.RunID())
}

func TestSetup_HealthFailureIsFatal(t *testing.T) {
	svc := &fakeOasis{healthErr: errors.New("connection refused")}
	h := harness.New(svc, testConfig(t), &bytes.Buffer{})

	err := h.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
	assert.False(t, svc.created)
}

func TestSetup_CreateFailureIsFatal(t *testing.T) {
	svc := &fakeOasis{createErr: &external.APIError{StatusCode: 500, Message: "disk full"}}
	h := harness.New(svc, testConfig(t), &bytes.Buffer{})

	err := h.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create collection")
}

func TestRun_EndToEnd(t *testing.T) {
	svc := &fakeOasis{failEvery: 5}
	cfg := testConfig(t)
	cfg.Stress.Duration = 400 * time.Millisecond
	var out bytes.Buffer
	h := harness.New(svc, cfg, &out)

	require.NoError(t, h.Setup(context.Background()))

	// Feed the server log while the harness runs.
	require.NoError(t, os.WriteFile(cfg.Log.Path, nil, 0o644))
	stopFeeding := make(chan struct{})
	go func() {
		f, err := os.OpenFile(cfg.Log.Path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		for {
			select {
			case <-stopFeeding:
				return
			case <-time.After(10 * time.Millisecond):
				_, _ = f.WriteString(`{"level":"INFO","msg":"compact starting","ts":"t"}` + "\n")
				_, _ = f.WriteString(`{"level":"ERROR","msg":"get collection blocked","ts":"t"}` + "\n")
			}
		}
	}()

	require.NoError(t, h.Run(context.Background()))
	close(stopFeeding)

	snap := h.Aggregator().Snapshot()

	// Inserted count is exactly batch size times successful batches.
	svc.mu.Lock()
	docs, batches := svc.docs, svc.batches
	svc.mu.Unlock()
	assert.Equal(t, int64(docs), snap.Counter(stats.CounterDocumentsInserted))
	assert.Equal(t, int64(10*(batches-batches/5)), snap.Counter(stats.CounterDocumentsInserted))

	// Failed batches landed in the error buffer, and the monitor polled.
	var insertFailures int
	for _, rec := range snap.Errors {
		if rec.Kind == "insert_failure" {
			insertFailures++
		}
	}
	assert.Equal(t, batches/5, insertFailures)
	assert.Greater(t, snap.Counter(stats.CounterGetCollectionSuccess), int64(0))

	// The log pipeline classified what was appended during the run.
	assert.Greater(t, snap.Counter(stats.CounterCompactStarted), int64(0))
	assert.Greater(t, snap.Counter(stats.CounterLogGetErrors), int64(0))

	// Final report reached the writer.
	assert.Contains(t, out.String(), "HARNESS REPORT")
}

func TestRun_CancelledContextStopsEverything(t *testing.T) {
	svc := &fakeOasis{}
	cfg := testConfig(t)
	cfg.Stress.Duration = 10 * time.Second
	h := harness.New(svc, cfg, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("harness did not stop after cancellation")
	}
}
