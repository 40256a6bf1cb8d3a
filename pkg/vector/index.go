package vector

import (
	"fmt"
	"sort"
)

// Index is a flat in-memory nearest-neighbor index over unit-normalized
// vectors. Insertion is append-only: every Add assigns the next sequential
// position and positions are never reused. Search scores by inner product,
// which equals cosine similarity for unit vectors.
//
// The index is not safe for concurrent appends; writers must serialize.
// Reads may race with an in-flight append and at worst miss the newest entry.
type Index struct {
	dim  int
	data []float32
}

// Hit is one search result: the vector's position and its similarity to the
// query.
type Hit struct {
	Position int
	Score    float64
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector: invalid dimension %d", dim)
	}
	return &Index{dim: dim}, nil
}

// Dim returns the vector dimension.
func (idx *Index) Dim() int {
	return idx.dim
}

// Len returns the number of stored vectors.
func (idx *Index) Len() int {
	return len(idx.data) / idx.dim
}

// Add appends a vector and returns its assigned position.
func (idx *Index) Add(v []float32) (int, error) {
	if len(v) != idx.dim {
		return 0, fmt.Errorf("vector: dimension mismatch: got %d want %d", len(v), idx.dim)
	}
	pos := idx.Len()
	idx.data = append(idx.data, v...)
	return pos, nil
}

// At returns the vector stored at the given position. The returned slice
// aliases the index storage and must not be modified.
func (idx *Index) At(pos int) ([]float32, error) {
	if pos < 0 || pos >= idx.Len() {
		return nil, fmt.Errorf("vector: position %d out of range [0,%d)", pos, idx.Len())
	}
	return idx.data[pos*idx.dim : (pos+1)*idx.dim], nil
}

// Search returns the top-k positions by inner product with the query,
// descending by score. k is clamped to the index size.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("vector: dimension mismatch: got %d want %d", len(query), idx.dim)
	}
	n := idx.Len()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	hits := make([]Hit, 0, n)
	for pos := 0; pos < n; pos++ {
		row := idx.data[pos*idx.dim : (pos+1)*idx.dim]
		var score float64
		for i := range query {
			score += float64(query[i]) * float64(row[i])
		}
		hits = append(hits, Hit{Position: pos, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})

	return hits[:k], nil
}

// Compact builds a fresh index containing only positions for which keep
// returns true and reports the old-to-new position remap. Used to rebuild
// the index without tombstoned entries; prior positions are invalidated and
// must be remapped by the caller.
func (idx *Index) Compact(keep func(pos int) bool) (*Index, map[int]int) {
	out := &Index{dim: idx.dim}
	remap := make(map[int]int)
	for pos := 0; pos < idx.Len(); pos++ {
		if !keep(pos) {
			continue
		}
		newPos := out.Len()
		out.data = append(out.data, idx.data[pos*idx.dim:(pos+1)*idx.dim]...)
		remap[pos] = newPos
	}
	return out, remap
}
