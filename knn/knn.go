// Package knn provides a small in-memory HNSW index used to build
// k-nearest-neighbour graphs over embedding batches in near-linearithmic
// time. It exists for spectral projection; it is not a general vector
// database.
package knn

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/semsphere/semsphere/queue"
)

// ErrDimensionMismatch reports a vector whose width differs from the
// index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("knn: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Result is a single nearest-neighbour match.
type Result struct {
	ID       uint32
	Distance float32 // squared L2
}

// Options configures graph construction.
type Options struct {
	// M is the number of connections established per element per layer.
	M int

	// EF is the size of the dynamic candidate list during construction
	// and search. Larger values trade speed for recall.
	EF int

	// Seed drives level assignment. Fixed by default so builds are
	// reproducible.
	Seed int64
}

// DefaultOptions are tuned for the small per-batch graphs spectral
// projection builds (hundreds to a few thousand rows).
var DefaultOptions = Options{
	M:    12,
	EF:   120,
	Seed: 1,
}

type node struct {
	connections [][]uint32
	vector      []float32
	layer       int
}

// Index is a hierarchical navigable small world graph.
type Index struct {
	dimension int
	mmax      int
	mmax0     int
	ml        float64
	ep        uint32
	maxLevel  int

	nodes []*node
	rng   *rand.Rand

	opts Options

	mu sync.Mutex
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int, optFns ...func(o *Options)) *Index {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.M < 2 {
		opts.M = 2 // level normalization divides by log(M)
	}

	return &Index{
		dimension: dimension,
		mmax:      opts.M,
		mmax0:     2 * opts.M,
		ml:        1 / math.Log(float64(opts.M)),
		rng:       rand.New(rand.NewSource(opts.Seed)),
		opts:      opts,
	}
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.nodes)
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Insert adds a vector and returns its dense id (insertion order).
func (ix *Index) Insert(v []float32) (uint32, error) {
	if len(v) != ix.dimension {
		return 0, &ErrDimensionMismatch{Expected: ix.dimension, Actual: len(v)}
	}

	vec := make([]float32, len(v))
	copy(vec, v)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	id := uint32(len(ix.nodes))
	n := &node{
		vector:      vec,
		layer:       int(math.Floor(-math.Log(ix.rng.Float64()) * ix.ml)),
		connections: make([][]uint32, ix.mmax+1),
	}

	// First element becomes the entry point.
	if len(ix.nodes) == 0 {
		ix.nodes = append(ix.nodes, n)
		ix.maxLevel = n.layer
		ix.ep = 0
		return id, nil
	}

	curr, currDist := ix.descend(vec, n.layer)

	top := queue.NewMin()
	for level := min(n.layer, ix.maxLevel); level >= 0; level-- {
		ix.searchLayer(vec, &queue.Item{Node: curr, Priority: currDist}, top, ix.opts.EF, level)
		ix.selectNeighbours(top, ix.opts.M)

		n.connections[level] = make([]uint32, top.Len())
		for i := top.Len() - 1; i >= 0; i-- {
			n.connections[level][i] = top.PopItem().Node
		}
	}

	ix.nodes = append(ix.nodes, n)

	// Link neighbours back, making the new node visible.
	for level := min(n.layer, ix.maxLevel); level >= 0; level-- {
		for _, neighbour := range n.connections[level] {
			ix.link(neighbour, id, level)
		}
	}

	if n.layer > ix.maxLevel {
		ix.ep = id
		ix.maxLevel = n.layer
	}

	return id, nil
}

// descend walks from the entry point down to targetLayer, greedily
// following the closest connection at each level.
func (ix *Index) descend(v []float32, targetLayer int) (uint32, float32) {
	curr := ix.ep
	currDist := squaredL2(ix.nodes[curr].vector, v)

	for level := ix.nodes[curr].layer; level > targetLayer; level-- {
		changed := true
		for changed {
			changed = false
			conns := ix.nodes[curr].connections
			if level >= len(conns) {
				continue
			}
			for _, id := range conns[level] {
				d := squaredL2(ix.nodes[id].vector, v)
				if d < currDist {
					curr, currDist = id, d
					changed = true
				}
			}
		}
	}
	return curr, currDist
}

// Search returns the k nearest neighbours of q in ascending distance
// order.
func (ix *Index) Search(q []float32, k int) ([]Result, error) {
	if len(q) != ix.dimension {
		return nil, &ErrDimensionMismatch{Expected: ix.dimension, Actual: len(q)}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(ix.nodes) == 0 {
		return nil, nil
	}

	curr, currDist := ix.descend(q, 0)

	top := queue.NewMax()
	ix.searchLayer(q, &queue.Item{Node: curr, Priority: currDist}, top, max(ix.opts.EF, k), 0)

	for top.Len() > k {
		top.PopItem()
	}

	out := make([]Result, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item := top.PopItem()
		out[i] = Result{ID: item.Node, Distance: item.Priority}
	}
	return out, nil
}

// searchLayer explores one layer, keeping the ef best candidates in top.
func (ix *Index) searchLayer(q []float32, entry *queue.Item, top *queue.PriorityQueue, ef, level int) {
	var visited bitset.BitSet
	visited.Set(uint(entry.Node))

	candidates := queue.NewMin()
	candidates.PushItem(entry.Node, entry.Priority)

	top.Descending = true // retain the worst of the best on top
	top.PushItem(entry.Node, entry.Priority)

	for candidates.Len() > 0 {
		lower := top.Top().Priority
		c := candidates.PopItem()
		if c.Priority > lower {
			break
		}

		conns := ix.nodes[c.Node].connections
		if level >= len(conns) {
			continue
		}
		for _, nid := range conns[level] {
			if visited.Test(uint(nid)) {
				continue
			}
			visited.Set(uint(nid))

			d := squaredL2(q, ix.nodes[nid].vector)
			if top.Len() < ef {
				top.PushItem(nid, d)
				candidates.PushItem(nid, d)
			} else if top.Top().Priority > d {
				top.PopItem()
				top.PushItem(nid, d)
				candidates.PushItem(nid, d)
			}
		}
	}
}

// link connects first -> second at the given level, pruning back to the
// per-level connection budget when exceeded.
func (ix *Index) link(first, second uint32, level int) {
	maxConns := ix.mmax
	if level == 0 {
		maxConns = ix.mmax0
	}

	n := ix.nodes[first]
	for len(n.connections) <= level {
		n.connections = append(n.connections, nil)
	}
	n.connections[level] = append(n.connections[level], second)

	if len(n.connections[level]) <= maxConns {
		return
	}

	pruned := queue.NewMin()
	for _, id := range n.connections[level] {
		pruned.PushItem(id, squaredL2(n.vector, ix.nodes[id].vector))
	}
	ix.selectNeighbours(pruned, maxConns)

	n.connections[level] = make([]uint32, pruned.Len())
	for i := pruned.Len() - 1; i >= 0; i-- {
		n.connections[level][i] = pruned.PopItem().Node
	}
}

// selectNeighbours applies the HNSW diversity heuristic: a candidate is
// kept only if it is closer to the query than to every already-kept
// neighbour, then the set is topped up with the nearest rejects.
func (ix *Index) selectNeighbours(candidates *queue.PriorityQueue, m int) {
	if candidates.Len() <= m {
		return
	}

	// Drain into a min-heap so the heuristic scans nearest first,
	// whatever mode the caller's queue is in.
	nearest := queue.NewMin()
	for candidates.Len() > 0 {
		item := candidates.PopItem()
		nearest.PushItem(item.Node, item.Priority)
	}

	rejected := queue.NewMin()
	kept := make([]*queue.Item, 0, m)

	for nearest.Len() > 0 && len(kept) < m {
		item := nearest.PopItem()
		diverse := true
		for _, k := range kept {
			d := squaredL2(ix.nodes[k.Node].vector, ix.nodes[item.Node].vector)
			if d < item.Priority {
				diverse = false
				break
			}
		}
		if diverse {
			kept = append(kept, item)
		} else {
			rejected.PushItem(item.Node, item.Priority)
		}
	}

	for len(kept) < m && rejected.Len() > 0 {
		kept = append(kept, rejected.PopItem())
	}

	for _, item := range kept {
		candidates.PushItem(item.Node, item.Priority)
	}
}
