package hnsw

import (
	"container/heap"
	"math"
	"math/rand/v2"

	"github.com/viant/vec/search"
)

type node struct {
	vec   []float32
	links [][]uint64
}

// candidate is a node at a distance from the current query.
type candidate struct {
	id   uint64
	dist float32
}

// closer orders by distance, then by id so equal scores resolve to the
// earlier insertion.
func closer(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.id < b.id
}

// minHeap pops the closest candidate first.
type minHeap []candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return closer(h[i], h[j]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// maxHeap pops the farthest candidate first.
type maxHeap []candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// graph is the layered proximity graph. It is not safe for concurrent
// mutation; Index guards it.
type graph struct {
	m              int
	maxLinks0      int
	efConstruction int
	levelMult      float64
	rng            *rand.Rand

	nodes    []*node
	entry    uint64
	maxLevel int
}

func newGraph(m, efConstruction int, seed uint64) *graph {
	return &graph{
		m:              m,
		maxLinks0:      2 * m,
		efConstruction: efConstruction,
		levelMult:      1 / math.Log(float64(m)),
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (g *graph) len() int {
	return len(g.nodes)
}

func (g *graph) randomLevel() int {
	u := g.rng.Float64()
	for u == 0 {
		u = g.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * g.levelMult))
}

func (g *graph) distance(q []float32, id uint64) float32 {
	n := g.nodes[id]
	return search.Float32s(q).CosineDistance(n.vec)
}

// add appends vec as the next node and links it into every layer it reaches.
func (g *graph) add(vec []float32) uint64 {
	id := uint64(len(g.nodes))
	level := g.randomLevel()
	n := &node{vec: vec, links: make([][]uint64, level+1)}
	g.nodes = append(g.nodes, n)

	if id == 0 {
		g.entry = id
		g.maxLevel = level
		return id
	}

	ep := g.entry
	for l := g.maxLevel; l > level; l-- {
		ep = g.greedy(vec, ep, l)
	}

	for l := min(level, g.maxLevel); l >= 0; l-- {
		found := g.searchLayer(vec, ep, g.efConstruction, l)
		neighbours := found
		if len(neighbours) > g.m {
			neighbours = neighbours[:g.m]
		}
		n.links[l] = make([]uint64, 0, len(neighbours))
		for _, c := range neighbours {
			n.links[l] = append(n.links[l], c.id)
			g.link(c.id, id, l)
		}
		ep = found[0].id
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entry = id
	}
	return id
}

// link adds to as a neighbour of from on layer l, pruning from's list to
// its closest neighbours when it overflows.
func (g *graph) link(from, to uint64, l int) {
	n := g.nodes[from]
	n.links[l] = append(n.links[l], to)

	limit := g.m
	if l == 0 {
		limit = g.maxLinks0
	}
	if len(n.links[l]) <= limit {
		return
	}

	h := make(minHeap, 0, len(n.links[l]))
	for _, id := range n.links[l] {
		h = append(h, candidate{id: id, dist: g.distance(n.vec, id)})
	}
	heap.Init(&h)
	kept := make([]uint64, 0, limit)
	for len(kept) < limit {
		kept = append(kept, heap.Pop(&h).(candidate).id)
	}
	n.links[l] = kept
}

// greedy walks layer l towards q and returns the closest node found.
func (g *graph) greedy(q []float32, ep uint64, l int) uint64 {
	best := candidate{id: ep, dist: g.distance(q, ep)}
	for changed := true; changed; {
		changed = false
		for _, nb := range g.nodes[best.id].links[l] {
			c := candidate{id: nb, dist: g.distance(q, nb)}
			if closer(c, best) {
				best = c
				changed = true
			}
		}
	}
	return best.id
}

// searchLayer returns up to ef nodes closest to q on layer l, closest first.
func (g *graph) searchLayer(q []float32, ep uint64, ef, l int) []candidate {
	start := candidate{id: ep, dist: g.distance(q, ep)}
	visited := map[uint64]struct{}{ep: {}}
	frontier := minHeap{start}
	results := maxHeap{start}

	for frontier.Len() > 0 {
		c := heap.Pop(&frontier).(candidate)
		if results.Len() >= ef && closer(results[0], c) {
			break
		}
		for _, nb := range g.nodes[c.id].links[l] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}
			nc := candidate{id: nb, dist: g.distance(q, nb)}
			if results.Len() < ef || closer(nc, results[0]) {
				heap.Push(&frontier, nc)
				heap.Push(&results, nc)
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(candidate)
	}
	return out
}

// knn returns up to ef candidates closest to q across the whole graph.
func (g *graph) knn(q []float32, ef int) []candidate {
	if len(g.nodes) == 0 {
		return nil
	}
	if len(g.nodes) <= ef {
		return g.scan(q)
	}
	ep := g.entry
	for l := g.maxLevel; l > 0; l-- {
		ep = g.greedy(q, ep, l)
	}
	return g.searchLayer(q, ep, ef, 0)
}

// scan compares q against every node. Small graphs are searched exhaustively.
func (g *graph) scan(q []float32) []candidate {
	h := make(minHeap, len(g.nodes))
	for i := range g.nodes {
		h[i] = candidate{id: uint64(i), dist: g.distance(q, uint64(i))}
	}
	heap.Init(&h)
	out := make([]candidate, 0, len(h))
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(candidate))
	}
	return out
}

func magnitude(v []float32) float32 {
	return search.Float32s(v).Magnitude()
}
