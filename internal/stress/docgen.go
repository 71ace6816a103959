package stress

import (
	"fmt"
	"math/rand"

	"github.com/oasisdb/compact-harness/external"
)

var categories = []string{"electronics", "books", "clothing", "toys", "sports"}

// generator produces synthetic documents with sequential ids and
// gaussian vectors. Ids continue from the number of documents already
// inserted, so a failed batch reuses its id range on retry just as an
// upsert would.
type generator struct {
	dimension int
	runID     string
	rng       *rand.Rand
	next      int
}

func newGenerator(dimension int, runID string, seed int64) *generator {
	return &generator{
		dimension: dimension,
		runID:     runID,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// randomVector draws a normally distributed vector, the same shape of
// load OasisDB's own benchmarks use.
func (g *generator) randomVector() []float32 {
	vec := make([]float32, g.dimension)
	for i := range vec {
		vec[i] = float32(g.rng.NormFloat64())
	}
	return vec
}

func (g *generator) document() external.Document {
	g.next++
	id := fmt.Sprintf("doc_%06d", g.next)
	return external.Document{
		ID:        id,
		Vector:    g.randomVector(),
		Dimension: g.dimension,
		Parameters: map[string]any{
			"category":    categories[g.rng.Intn(len(categories))],
			"price":       float64(int(g.rng.Float64()*99000+1000)) / 100, // 10.00..1000.00
			"rating":      float64(int(g.rng.Float64()*40+10)) / 10,       // 1.0..5.0
			"description": fmt.Sprintf("Random item %s with %d features", id, g.rng.Intn(46)+5),
			"run_id":      g.runID,
		},
	}
}

// batch produces n documents.
func (g *generator) batch(n int) []external.Document {
	docs := make([]external.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, g.document())
	}
	return docs
}

// rewind returns the id counter to where it was before the last n
// documents, so the ids of a failed batch are reissued.
func (g *generator) rewind(n int) {
	g.next -= n
}
