package vector

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

type hnswNode struct {
	id        int64
	vec       []float32
	level     int
	neighbors [][]int64 // neighbors[layer] = ids connected at that layer
}

// HNSW is a layered proximity graph approximate nearest-neighbour index.
// Unlike the rest of the module, HNSW holds its lock for the full duration
// of Add/Search rather than snapshotting and releasing: graph traversal
// must see a consistent set of neighbour lists, and a mutation racing with
// a concurrent traversal could hand back a neighbour removed mid-insert.
type HNSW struct {
	mu sync.RWMutex

	dim            int
	m              int
	efConstruction int
	efSearch       int
	mL             float64
	rnd            *rand.Rand

	nodes     map[int64]*hnswNode
	entry     int64
	hasEntry  bool
	maxLevel  int
}

// NewHNSW builds an index over dim-dimensional vectors. m is the base
// per-node neighbour count (layer-0 nodes keep up to 2m); efConstruction
// controls candidate-list breadth during insertion.
func NewHNSW(dim, m, efConstruction int) *HNSW {
	if m <= 0 {
		m = 16
	}
	if efConstruction <= 0 {
		efConstruction = 200
	}
	return &HNSW{
		dim:            dim,
		m:              m,
		efConstruction: efConstruction,
		mL:             1 / math.Log(float64(m)),
		rnd:            rand.New(rand.NewSource(1)),
		nodes:          make(map[int64]*hnswNode),
	}
}

func (h *HNSW) Dim() int { return h.dim }

// SetEfSearch overrides the breadth used by Search; Search uses
// max(efSearch, k) when set, or k itself when left at the zero value.
func (h *HNSW) SetEfSearch(ef int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.efSearch = ef
}

func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

func (h *HNSW) sampleLevel() int {
	r := h.rnd.Float64()
	for r <= 0 {
		r = h.rnd.Float64()
	}
	return int(-math.Log(r) * h.mL)
}

func (h *HNSW) Add(id int64, vec []float32) error {
	if len(vec) != h.dim {
		return cdberr.New(cdberr.Storage, fmt.Sprintf("vector length %d does not match index dim %d", len(vec), h.dim))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.nodes[id]; ok {
		existing.vec = vec
		return nil
	}

	level := h.sampleLevel()
	n := &hnswNode{id: id, vec: vec, level: level, neighbors: make([][]int64, level+1)}

	if !h.hasEntry {
		h.nodes[id] = n
		h.entry = id
		h.hasEntry = true
		h.maxLevel = level
		return nil
	}

	cur := h.entry
	for lc := h.maxLevel; lc > level; lc-- {
		res := h.searchLayerLocked(vec, cur, 1, lc)
		if len(res) > 0 {
			cur = res[0].ID
		}
	}

	top := level
	if h.maxLevel < top {
		top = h.maxLevel
	}
	for lc := top; lc >= 0; lc-- {
		candidates := h.searchLayerLocked(vec, cur, h.efConstruction, lc)
		selected := selectNeighbors(candidates, h.m)
		n.neighbors[lc] = selected

		maxConn := h.m
		if lc == 0 {
			maxConn = 2 * h.m
		}
		for _, nbID := range selected {
			nb := h.nodes[nbID]
			nb.neighbors[lc] = append(nb.neighbors[lc], id)
			if len(nb.neighbors[lc]) > maxConn {
				nb.neighbors[lc] = prune(nb.vec, nb.neighbors[lc], maxConn, h.nodes)
			}
		}
		if len(candidates) > 0 {
			cur = candidates[0].ID
		}
	}

	h.nodes[id] = n
	if level > h.maxLevel {
		h.entry = id
		h.maxLevel = level
	}
	return nil
}

func selectNeighbors(candidates []Result, m int) []int64 {
	sortResults(candidates)
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]int64, len(candidates))
	for i, c := range candidates {
		out[i] = c.ID
	}
	return out
}

func prune(center []float32, ids []int64, max int, nodes map[int64]*hnswNode) []int64 {
	scored := make([]Result, len(ids))
	for i, id := range ids {
		scored[i] = Result{ID: id, Score: cosine(center, nodes[id].vec)}
	}
	sortResults(scored)
	if len(scored) > max {
		scored = scored[:max]
	}
	out := make([]int64, len(scored))
	for i, c := range scored {
		out[i] = c.ID
	}
	return out
}

// searchLayerLocked runs a best-first search at layer lc starting from
// entry, returning up to ef candidates sorted by descending similarity.
// Caller must hold h.mu (read or write).
func (h *HNSW) searchLayerLocked(query []float32, entry int64, ef, lc int) []Result {
	entryNode, ok := h.nodes[entry]
	if !ok {
		return nil
	}
	visited := map[int64]bool{entry: true}
	entrySim := cosine(query, entryNode.vec)
	candidates := []Result{{entry, entrySim}}
	found := []Result{{entry, entrySim}}

	for len(candidates) > 0 {
		sortResults(candidates)
		best := candidates[0]
		candidates = candidates[1:]

		if len(found) >= ef && best.Score < worstScore(found) {
			break
		}

		node := h.nodes[best.ID]
		if lc >= len(node.neighbors) {
			continue
		}
		for _, nbID := range node.neighbors[lc] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			nb, ok := h.nodes[nbID]
			if !ok {
				continue
			}
			sim := cosine(query, nb.vec)
			if len(found) < ef || sim > worstScore(found) {
				candidates = append(candidates, Result{nbID, sim})
				found = append(found, Result{nbID, sim})
				if len(found) > ef {
					sortResults(found)
					found = found[:ef]
				}
			}
		}
	}
	sortResults(found)
	return found
}

func worstScore(found []Result) float64 {
	if len(found) == 0 {
		return math.Inf(-1)
	}
	w := found[0].Score
	for _, r := range found[1:] {
		if r.Score < w {
			w = r.Score
		}
	}
	return w
}

func (h *HNSW) Search(query []float32, k int) ([]Result, error) {
	if len(query) != h.dim {
		return nil, cdberr.New(cdberr.Query, fmt.Sprintf("query length %d does not match index dim %d", len(query), h.dim))
	}
	k = clampK(k)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasEntry {
		return nil, nil
	}

	ef := h.efSearch
	if ef < k {
		ef = k
	}

	cur := h.entry
	for lc := h.maxLevel; lc > 0; lc-- {
		res := h.searchLayerLocked(query, cur, 1, lc)
		if len(res) > 0 {
			cur = res[0].ID
		}
	}

	candidates := h.searchLayerLocked(query, cur, ef, 0)
	sortResults(candidates)
	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (h *HNSW) BatchSearch(queries [][]float32, k int) ([][]Result, error) {
	out := make([][]Result, len(queries))
	for i, q := range queries {
		r, err := h.Search(q, k)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
