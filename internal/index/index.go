// Package index is a flat exact inner-product index over L2-normalized
// float32 vectors, with a compact binary encoding for persistence.
package index

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmpty is returned when building from no vectors.
	ErrEmpty = errors.New("no vectors")
)

// Hit is one search result.
type Hit struct {
	Row   int
	Score float32
}

// Index is an immutable row-major matrix of vectors. Safe for concurrent search.
type Index struct {
	dim  int
	rows int
	data []float32
}

// Build copies vectors into a new index. All vectors must share one dimension.
func Build(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmpty
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("row 0: %w: zero-length vector", ErrDimensionMismatch)
	}

	data := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("row %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(v), dim)
		}
		data = append(data, v...)
	}
	return &Index{dim: dim, rows: len(vectors), data: data}, nil
}

// Dim returns the vector dimension.
func (x *Index) Dim() int { return x.dim }

// Rows returns the number of stored vectors.
func (x *Index) Rows() int { return x.rows }

// Vector returns a copy of row i.
func (x *Index) Vector(i int) []float32 {
	out := make([]float32, x.dim)
	copy(out, x.data[i*x.dim:(i+1)*x.dim])
	return out
}

// Search returns the k rows with the highest inner product against query,
// by descending score with ties broken by ascending row. k is clamped to Rows.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	k = min(k, x.rows)

	hits := make([]Hit, x.rows)
	for row := 0; row < x.rows; row++ {
		vec := x.data[row*x.dim : (row+1)*x.dim]
		var dot float32
		for j, q := range query {
			dot += q * vec[j]
		}
		hits[row] = Hit{Row: row, Score: dot}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits[:k], nil
}
