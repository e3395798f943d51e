package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/oarkflow/coreengine/errs"
)

// Params tunes the HNSW graph.
type Params struct {
	Dimension       int
	Metric          Metric
	M               int     // max neighbors per layer (M0 = 2*M at layer 0 in classic HNSW; this implementation uses a single M bound per spec)
	EfConstruction  int
	EfSearch        int
	MaxLayers       int
	LevelMultiplier float64
}

// DefaultParams returns reasonable tuning for dimension d.
func DefaultParams(d int, metric Metric) Params {
	return Params{
		Dimension:       d,
		Metric:          metric,
		M:               16,
		EfConstruction:  200,
		EfSearch:        64,
		MaxLayers:       16,
		LevelMultiplier: 1 / math.Log(16),
	}
}

type node struct {
	key       string
	vector    Vector
	layer     int
	neighbors [][]int // neighbors[l] = ids, for l in [0, layer]
	deleted   bool
}

// SearchResult is one ranked neighbor returned by Search.
type SearchResult struct {
	Key      string
	Distance float64
}

// Index is the in-memory multi-layer HNSW proximity graph. Nodes live in a
// contiguous arena and reference each other by index, avoiding
// shared-ownership cycles.
type Index struct {
	mu sync.RWMutex

	params Params
	rng    *rand.Rand

	arena      []*node
	keyToID    map[string]int
	entryPoint int
	maxLayer   int
}

// New creates an empty HNSW index.
func New(params Params) *Index {
	return &Index{
		params:     params,
		rng:        rand.New(rand.NewSource(1)),
		keyToID:    make(map[string]int),
		entryPoint: -1,
		maxLayer:   -1,
	}
}

func (ix *Index) randomLayer() int {
	u := ix.rng.Float64()
	for u == 0 {
		u = ix.rng.Float64()
	}
	l := int(math.Floor(-math.Log(u) * ix.params.LevelMultiplier))
	if l < 0 {
		l = 0
	}
	if l > ix.params.MaxLayers-1 {
		l = ix.params.MaxLayers - 1
	}
	return l
}

func (ix *Index) distance(a, b Vector) float64 {
	return Distance(ix.params.Metric, a, b)
}

// Insert adds key/v to the graph.
func (ix *Index) Insert(key string, v Vector) error {
	if len(v) != ix.params.Dimension {
		return errs.InvalidArgf("HNSW.Insert", "vector dimension %d does not match configured dimension %d", len(v), ix.params.Dimension)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.keyToID[key]; exists {
		return errs.AlreadyExistsf("HNSW.Insert", "key %q already indexed", key)
	}

	layer := ix.randomLayer()
	n := &node{
		key:       key,
		vector:    append(Vector(nil), v...),
		layer:     layer,
		neighbors: make([][]int, layer+1),
	}
	id := len(ix.arena)
	ix.arena = append(ix.arena, n)
	ix.keyToID[key] = id

	if ix.entryPoint == -1 {
		ix.entryPoint = id
		ix.maxLayer = layer
		return nil
	}

	entry := ix.entryPoint
	for l := ix.maxLayer; l > layer; l-- {
		entry = ix.greedyNearest(v, entry, l)
	}

	for l := min(layer, ix.maxLayer); l >= 0; l-- {
		candidates := ix.searchLayer(v, []int{entry}, ix.params.EfConstruction, l)
		selected := ix.selectClosest(v, candidates, ix.params.M)
		n.neighbors[l] = selected

		for _, nb := range selected {
			ix.addEdge(nb, id, l)
			ix.pruneIfNeeded(nb, l)
		}
		if len(candidates) > 0 {
			entry = candidates[0]
		}
	}

	if layer > ix.maxLayer {
		ix.entryPoint = id
		ix.maxLayer = layer
	}
	return nil
}

func (ix *Index) addEdge(from, to, layer int) {
	nd := ix.arena[from]
	if layer > nd.layer {
		return
	}
	nd.neighbors[layer] = append(nd.neighbors[layer], to)
}

func (ix *Index) pruneIfNeeded(id, layer int) {
	nd := ix.arena[id]
	if len(nd.neighbors[layer]) <= ix.params.M {
		return
	}
	kept := ix.selectClosest(nd.vector, nd.neighbors[layer], ix.params.M)
	nd.neighbors[layer] = kept
}

// selectClosest returns up to M ids from candidates, closest to q first.
func (ix *Index) selectClosest(q Vector, candidates []int, m int) []int {
	type scored struct {
		id   int
		dist float64
	}
	uniq := make(map[int]struct{}, len(candidates))
	list := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := uniq[id]; ok {
			continue
		}
		uniq[id] = struct{}{}
		list = append(list, scored{id: id, dist: ix.distance(q, ix.arena[id].vector)})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].dist < list[j].dist })
	if len(list) > m {
		list = list[:m]
	}
	out := make([]int, len(list))
	for i, s := range list {
		out[i] = s.id
	}
	return out
}

// greedyNearest returns the single nearest neighbor to q reachable from
// entry at layer, using ef=1 greedy expansion.
func (ix *Index) greedyNearest(q Vector, entry int, layer int) int {
	best := ix.searchLayer(q, []int{entry}, 1, layer)
	if len(best) == 0 {
		return entry
	}
	return best[0]
}

type candidateItem struct {
	id   int
	dist float64
}

type minHeap []candidateItem

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidateItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type maxHeap []candidateItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidateItem)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// searchLayer runs the standard HNSW greedy expansion at layer, returning
// up to ef ids ordered closest-first.
func (ix *Index) searchLayer(q Vector, entries []int, ef int, layer int) []int {
	visited := make(map[int]bool)
	candidates := &minHeap{}
	results := &maxHeap{}

	for _, e := range entries {
		if visited[e] {
			continue
		}
		visited[e] = true
		d := ix.distance(q, ix.arena[e].vector)
		heap.Push(candidates, candidateItem{id: e, dist: d})
		heap.Push(results, candidateItem{id: e, dist: d})
	}

	for candidates.Len() > 0 {
		c := (*candidates)[0]
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		heap.Pop(candidates)

		nd := ix.arena[c.id]
		if layer > nd.layer {
			continue
		}
		for _, nbID := range nd.neighbors[layer] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			d := ix.distance(q, ix.arena[nbID].vector)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, candidateItem{id: nbID, dist: d})
				heap.Push(results, candidateItem{id: nbID, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidateItem, results.Len())
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	ids := make([]int, len(out))
	for i, it := range out {
		ids[i] = it.id
	}
	return ids
}

// Search returns up to k nearest (non-deleted) neighbors to q.
func (ix *Index) Search(q Vector, k int) ([]SearchResult, error) {
	if len(q) != ix.params.Dimension {
		return nil, errs.InvalidArgf("HNSW.Search", "vector dimension %d does not match configured dimension %d", len(q), ix.params.Dimension)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.entryPoint == -1 {
		return nil, nil
	}

	entry := ix.entryPoint
	for l := ix.maxLayer; l >= 1; l-- {
		entry = ix.greedyNearest(q, entry, l)
	}

	ef := ix.params.EfSearch
	if k > ef {
		ef = k
	}
	candidates := ix.searchLayer(q, []int{entry}, ef, 0)

	results := make([]SearchResult, 0, len(candidates))
	for _, id := range candidates {
		nd := ix.arena[id]
		if nd.deleted {
			continue
		}
		results = append(results, SearchResult{Key: nd.key, Distance: ix.distance(q, nd.vector)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Remove lazily tombstones key; the node and its edges stay in the graph
// (they are never reclaimed) and Search filters it from results.
func (ix *Index) Remove(key string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	id, ok := ix.keyToID[key]
	if !ok {
		return errs.NotFoundf("HNSW.Remove", "key %q not indexed", key)
	}
	ix.arena[id].deleted = true
	delete(ix.keyToID, key)
	return nil
}

// Len returns the number of nodes ever inserted, deleted or not.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.arena)
}
