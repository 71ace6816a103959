package ringbuf_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasisdb/compact-harness/internal/ringbuf"
)

func TestRing_PushBelowCapacity(t *testing.T) {
	r := ringbuf.New[int](5)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 5, r.Cap())
	assert.Equal(t, []int{1, 2, 3}, r.Snapshot())
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	const capacity = 4
	r := ringbuf.New[int](capacity)

	// Push well past capacity; snapshot must hold exactly the last
	// `capacity` items in insertion order.
	for i := 1; i <= 10; i++ {
		r.Push(i)
	}

	got := r.Snapshot()
	require.Len(t, got, capacity)
	assert.Equal(t, []int{7, 8, 9, 10}, got)
}

func TestRing_SnapshotIsACopy(t *testing.T) {
	r := ringbuf.New[string](2)
	r.Push("a")

	snap := r.Snapshot()
	r.Push("b")
	r.Push("c")

	assert.Equal(t, []string{"a"}, snap)
	assert.Equal(t, []string{"b", "c"}, r.Snapshot())
}

func TestRing_EmptySnapshot(t *testing.T) {
	r := ringbuf.New[int](3)
	assert.Empty(t, r.Snapshot())
	assert.Equal(t, 0, r.Len())
}

func TestRing_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { ringbuf.New[int](0) })
}

func TestRing_ConcurrentPushAndSnapshot(t *testing.T) {
	const (
		writers = 8
		pushes  = 500
	)
	r := ringbuf.New[string](64)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < pushes; i++ {
				r.Push(fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}

	// Concurrent readers must never observe torn or over-capacity state.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			snap := r.Snapshot()
			assert.LessOrEqual(t, len(snap), 64)
			for _, s := range snap {
				assert.NotEmpty(t, s)
			}
		}
	}()

	wg.Wait()
	<-done

	assert.Equal(t, 64, r.Len())
}
