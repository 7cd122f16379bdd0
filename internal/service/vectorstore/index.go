// Package vectorstore provides an in-memory cosine nearest-neighbour index.
package vectorstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// ErrDimensionMismatch is returned when a vector does not match the index.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Neighbor is one search hit.
type Neighbor struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}

// Searcher finds the k nearest stored vectors.
type Searcher interface {
	NearestNeighbors(ctx context.Context, vec []float32, k int) ([]Neighbor, error)
}

// Unit converts vec to float64 and scales it to unit length.
// A zero vector stays zero.
func Unit(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	if n := floats.Norm(out, 2); n > 0 {
		floats.Scale(1/n, out)
	}
	return out
}

// Cosine returns the cosine similarity of two unit vectors.
// Vectors of different length score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return floats.Dot(a, b)
}

// Index is a brute-force cosine index. Thread-safe.
type Index struct {
	mu   sync.RWMutex
	dim  int
	ids  []string
	vecs [][]float64
	pos  map[string]int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{pos: make(map[string]int)}
}

// Upsert stores vec under id, replacing an existing entry.
// The first vector fixes the dimension of the index.
func (x *Index) Upsert(id string, vec []float32) error {
	u := Unit(vec)

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim == 0 {
		x.dim = len(u)
	} else if len(u) != x.dim {
		return ErrDimensionMismatch
	}
	if i, ok := x.pos[id]; ok {
		x.vecs[i] = u
		return nil
	}
	x.pos[id] = len(x.ids)
	x.ids = append(x.ids, id)
	x.vecs = append(x.vecs, u)
	return nil
}

// Delete removes id if present.
func (x *Index) Delete(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	i, ok := x.pos[id]
	if !ok {
		return
	}
	last := len(x.ids) - 1
	x.ids[i], x.vecs[i] = x.ids[last], x.vecs[last]
	x.pos[x.ids[i]] = i
	x.ids = x.ids[:last]
	x.vecs = x.vecs[:last]
	delete(x.pos, id)
	if len(x.ids) == 0 {
		x.dim = 0
	}
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// NearestNeighbors returns up to k hits ordered by descending similarity.
func (x *Index) NearestNeighbors(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	q := Unit(vec)

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.ids) == 0 {
		return nil, nil
	}
	if len(q) != x.dim {
		return nil, ErrDimensionMismatch
	}

	hits := make([]Neighbor, 0, len(x.ids))
	for i, v := range x.vecs {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		hits = append(hits, Neighbor{ID: x.ids[i], Score: floats.Dot(q, v)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
