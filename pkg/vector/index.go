// Package vector implements the approximate and exact nearest-neighbour
// indices used by memory and experience retrieval: a linear-scan Flat
// index and a layered-graph HNSW index, both scored by cosine similarity
// with an optional GPU-accelerated backend.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/vector/simd"
)

// MaxK bounds any single search request.
const MaxK = 100_000

// cosineEpsilon below which either vector's norm is treated as zero.
const cosineEpsilon = 1e-8

// Result is one scored hit from a search.
type Result struct {
	ID    int64
	Score float64
}

// Index is satisfied by Flat and HNSW.
type Index interface {
	Add(id int64, vec []float32) error
	Search(query []float32, k int) ([]Result, error)
	BatchSearch(queries [][]float32, k int) ([][]Result, error)
	Len() int
	Dim() int
}

func clampK(k int) int {
	if k < 0 {
		return 0
	}
	if k > MaxK {
		return MaxK
	}
	return k
}

// cosine returns the cosine similarity of a and b, using the GPU backend
// when available and falling back to the SIMD/generic CPU path otherwise.
// Either vector having norm below cosineEpsilon yields 0. NaN components
// propagate as NaN so the caller can sort them last.
func cosine(a, b []float32) float64 {
	if containsNaN(a) || containsNaN(b) {
		return math.NaN()
	}
	if norm(a) < cosineEpsilon || norm(b) < cosineEpsilon {
		return 0
	}
	if gpuEnabled() {
		if score, ok := gpuCosine(a, b); ok {
			return score
		}
	}
	var out float64
	simd.Cosine(&out, a, b)
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func containsNaN(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) {
			return true
		}
	}
	return false
}

// sortResults orders by descending score, NaN last, ties broken by
// ascending id for determinism.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		si, sj := results[i].Score, results[j].Score
		ni, nj := math.IsNaN(si), math.IsNaN(sj)
		if ni != nj {
			return !ni
		}
		if ni && nj {
			return results[i].ID < results[j].ID
		}
		if si != sj {
			return si > sj
		}
		return results[i].ID < results[j].ID
	})
}

// -------------------------------------------------------------------------
// Flat index
// -------------------------------------------------------------------------

// Flat stores every embedding and scores queries with a full linear scan.
type Flat struct {
	mu   sync.RWMutex
	dim  int
	ids  []int64
	vecs [][]float32
	pos  map[int64]int
}

func NewFlat(dim int) *Flat {
	return &Flat{dim: dim, pos: make(map[int64]int)}
}

func (f *Flat) Dim() int { return f.dim }

func (f *Flat) Add(id int64, vec []float32) error {
	if len(vec) != f.dim {
		return cdberr.New(cdberr.Storage, fmt.Sprintf("vector length %d does not match index dim %d", len(vec), f.dim))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.pos[id]; ok {
		f.vecs[i] = vec
		return nil
	}
	f.pos[id] = len(f.ids)
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, vec)
	return nil
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

func (f *Flat) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dim {
		return nil, cdberr.New(cdberr.Query, fmt.Sprintf("query length %d does not match index dim %d", len(query), f.dim))
	}
	k = clampK(k)

	f.mu.RLock()
	ids := make([]int64, len(f.ids))
	copy(ids, f.ids)
	vecs := make([][]float32, len(f.vecs))
	copy(vecs, f.vecs)
	f.mu.RUnlock()

	results := make([]Result, len(ids))
	for i, v := range vecs {
		results[i] = Result{ID: ids[i], Score: cosine(query, v)}
	}
	sortResults(results)
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (f *Flat) BatchSearch(queries [][]float32, k int) ([][]Result, error) {
	out := make([][]Result, len(queries))
	for i, q := range queries {
		r, err := f.Search(q, k)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
