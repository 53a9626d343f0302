// Package query answers questions against the substrate: geometric
// proximity, rated relationships, multi-hop paths through the edge
// overlay, and a combined ranking that blends both signals.
//
// Proximity is approximate by design. The spatial index is a one-way
// space-filling curve, so candidate gathering scans widening cell ranges
// around the query cell and every candidate is verified with the exact
// geodesic distance before ranking.
package query

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/semsphere/semsphere/curve"
	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/graph"
	"github.com/semsphere/semsphere/hash"
	"github.com/semsphere/semsphere/store"
)

// ErrNoPath reports a multi-hop query that exhausted every reachable node
// without meeting the target.
var ErrNoPath = errors.New("query: no path to target")

// Options tunes the engine.
type Options struct {
	// Oversample is how many verified candidates per requested result the
	// proximity scan gathers before ranking.
	Oversample int

	// InitialWindow is the half-width of the first cell window, in curve
	// cells. Each widening round doubles it.
	InitialWindow uint64

	// MaxRounds bounds the widening; the final round always covers the
	// full tier range.
	MaxRounds int

	// GeometricWeight and RelationalWeight blend the combined score.
	GeometricWeight  float64
	RelationalWeight float64
}

// DefaultOptions balance scan cost against recall for the statistical
// locality the curve provides.
var DefaultOptions = Options{
	Oversample:       8,
	InitialWindow:    1 << 24,
	MaxRounds:        8,
	GeometricWeight:  0.5,
	RelationalWeight: 0.5,
}

// Engine executes queries over a store and its edge overlay.
type Engine struct {
	store store.Store
	graph *graph.Graph
	opts  Options
}

// New builds an Engine.
func New(s store.Store, g *graph.Graph, optFns ...func(o *Options)) *Engine {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Oversample < 1 {
		opts.Oversample = 1
	}
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}
	return &Engine{store: s, graph: g, opts: opts}
}

// Match is one proximity result.
type Match struct {
	Hash     hash.Hash
	Kind     entity.Kind
	Distance float64 // geodesic, radians
}

// pointOf resolves the indexed coordinate of an entity by tier.
func (e *Engine) pointOf(ctx context.Context, kind entity.Kind, h hash.Hash) (geometry.Vector4, error) {
	switch kind {
	case entity.KindAtom:
		a, err := e.store.GetAtom(ctx, h)
		if err != nil {
			return geometry.Vector4{}, err
		}
		return a.Position, nil
	case entity.KindComposition:
		c, err := e.store.GetComposition(ctx, h)
		if err != nil {
			return geometry.Vector4{}, err
		}
		return c.Point, nil
	case entity.KindRelation:
		r, err := e.store.GetRelation(ctx, h)
		if err != nil {
			return geometry.Vector4{}, err
		}
		return r.Centroid, nil
	default:
		return geometry.Vector4{}, fmt.Errorf("query: unknown kind %v", kind)
	}
}

// Proximity returns the k entities of one tier nearest to point, by exact
// geodesic distance. Candidates come from widening curve-cell windows
// around the query cell; results are best-effort when the tier is larger
// than the scanned windows.
func (e *Engine) Proximity(ctx context.Context, kind entity.Kind, point geometry.Vector4, k int) ([]Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("query: k must be positive, got %d", k)
	}

	center := curve.Encode(point, kind.Tag())
	lo, hi := curve.TagRange(kind.Tag())

	seen := make(map[hash.Hash]struct{})
	var matches []Match
	want := k * e.opts.Oversample

	window := e.opts.InitialWindow
	for round := 0; round < e.opts.MaxRounds; round++ {
		scanLo, scanHi := center-curve.Cell(window), center+curve.Cell(window)
		if scanLo > center || scanLo < lo { // underflow or out of tier
			scanLo = lo
		}
		if scanHi < center || scanHi > hi {
			scanHi = hi
		}
		if round == e.opts.MaxRounds-1 {
			scanLo, scanHi = lo, hi
		}

		entries, err := e.store.ScanCells(ctx, kind, scanLo, scanHi, 0)
		if err != nil {
			return nil, err
		}
		for _, ent := range entries {
			if _, dup := seen[ent.Hash]; dup {
				continue
			}
			seen[ent.Hash] = struct{}{}

			p, err := e.pointOf(ctx, kind, ent.Hash)
			if err != nil {
				return nil, err
			}
			matches = append(matches, Match{
				Hash:     ent.Hash,
				Kind:     kind,
				Distance: geometry.Geodesic(point, p),
			})
		}

		if len(matches) >= want || (scanLo == lo && scanHi == hi) {
			break
		}
		window <<= 1
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Hash.String() < matches[j].Hash.String()
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Relationship returns up to limit outgoing edges of source, strongest
// rating first. limit <= 0 returns all.
func (e *Engine) Relationship(ctx context.Context, source hash.Hash, edgeType string, limit int) ([]*entity.Edge, error) {
	edges, err := e.graph.Neighbors(ctx, source, edgeType)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(edges) > limit {
		edges = edges[:limit]
	}
	return edges, nil
}

// Path is the result of a multi-hop query.
type Path struct {
	// Edges in traversal order, source to target.
	Edges []*entity.Edge

	// Cost is the accumulated inverse-rating cost.
	Cost float64

	// Partial is true when the hop budget expired while unexplored
	// candidates remained, meaning a longer path may exist.
	Partial bool
}

// Hops returns the number of edges in the path.
func (p *Path) Hops() int { return len(p.Edges) }

type pathState struct {
	node    hash.Hash
	cost    float64
	prio    float64 // cost + heuristic
	edges   []*entity.Edge
	visited map[hash.Hash]struct{}
}

type pathHeap []*pathState

func (h pathHeap) Len() int           { return len(h) }
func (h pathHeap) Less(i, j int) bool { return h[i].prio < h[j].prio }
func (h pathHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pathHeap) Push(x any)        { *h = append(*h, x.(*pathState)) }

func (h *pathHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// edgeCost converts a rating into a traversal cost: strong edges are
// cheap, weak edges expensive.
func edgeCost(rating float64) float64 {
	if rating < 1 {
		rating = 1
	}
	return entity.DefaultRating / rating
}

// MultiHop finds the cheapest path from source to target through edges of
// edgeType ("" matches all), using at most maxHops edges. The search is
// best-first on accumulated cost plus a geodesic-to-target heuristic.
// Nodes already on the current path are never revisited, so cycles in the
// edge graph terminate cleanly.
//
// ErrNoPath is returned when the reachable subgraph within the budget
// does not contain the target; Path.Partial reports whether the budget
// was the limiting factor.
func (e *Engine) MultiHop(ctx context.Context, source, target hash.Hash, edgeType string, maxHops int) (*Path, error) {
	if maxHops < 1 {
		return nil, fmt.Errorf("query: maxHops must be positive, got %d", maxHops)
	}
	if source == target {
		return &Path{}, nil
	}

	goal, goalErr := e.anyPointOf(ctx, target)

	h := &pathHeap{}
	heap.Init(h)
	heap.Push(h, &pathState{
		node:    source,
		visited: map[hash.Hash]struct{}{source: {}},
	})

	truncated := false
	for h.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := heap.Pop(h).(*pathState)

		if cur.node == target {
			return &Path{Edges: cur.edges, Cost: cur.cost}, nil
		}
		if len(cur.edges) >= maxHops {
			truncated = true
			continue
		}

		edges, err := e.graph.Neighbors(ctx, cur.node, edgeType)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if _, onPath := cur.visited[edge.Target]; onPath {
				continue
			}
			visited := make(map[hash.Hash]struct{}, len(cur.visited)+1)
			for k := range cur.visited {
				visited[k] = struct{}{}
			}
			visited[edge.Target] = struct{}{}

			next := &pathState{
				node:    edge.Target,
				cost:    cur.cost + edgeCost(edge.Rating),
				edges:   append(append([]*entity.Edge(nil), cur.edges...), edge),
				visited: visited,
			}
			next.prio = next.cost
			if goalErr == nil {
				if p, err := e.anyPointOf(ctx, edge.Target); err == nil {
					// Geodesic is at most pi; scale it under one hop's
					// minimum cost so the heuristic stays admissible-ish.
					next.prio += geometry.Geodesic(p, goal) / math.Pi
				}
			}
			heap.Push(h, next)
		}
	}

	return &Path{Partial: truncated}, ErrNoPath
}

// anyPointOf resolves a hash in whichever tier it lives.
func (e *Engine) anyPointOf(ctx context.Context, h hash.Hash) (geometry.Vector4, error) {
	for _, kind := range []entity.Kind{entity.KindComposition, entity.KindAtom, entity.KindRelation} {
		if p, err := e.pointOf(ctx, kind, h); err == nil {
			return p, nil
		}
	}
	return geometry.Vector4{}, store.ErrNotFound
}

// Ranked is one combined-query result.
type Ranked struct {
	Hash          hash.Hash
	Score         float64
	Distance      float64 // geodesic to the query point
	Rating        float64 // 0 when no edge from source exists
	EvidenceCount int64
}

// Combined ranks entities of one tier near a point by a weighted blend of
// geometric closeness and relational strength from source. Candidate sets
// are intersected and unioned through bitmaps over query-scoped dense
// ids; entities present in both sets outrank single-signal ones at equal
// score.
func (e *Engine) Combined(ctx context.Context, kind entity.Kind, point geometry.Vector4, source hash.Hash, edgeType string, k int) ([]Ranked, error) {
	if k < 1 {
		return nil, fmt.Errorf("query: k must be positive, got %d", k)
	}

	near, err := e.Proximity(ctx, kind, point, k*e.opts.Oversample)
	if err != nil {
		return nil, err
	}
	edges, err := e.graph.Neighbors(ctx, source, edgeType)
	if err != nil {
		return nil, err
	}

	// Query-scoped dense ids over the union of both candidate sets.
	ids := make(map[hash.Hash]uint32)
	var ordered []hash.Hash
	idOf := func(h hash.Hash) uint32 {
		if id, ok := ids[h]; ok {
			return id
		}
		id := uint32(len(ordered))
		ids[h] = id
		ordered = append(ordered, h)
		return id
	}

	geoSet := roaring.New()
	distance := make(map[hash.Hash]float64)
	for _, m := range near {
		geoSet.Add(idOf(m.Hash))
		distance[m.Hash] = m.Distance
	}

	relSet := roaring.New()
	byTarget := make(map[hash.Hash]*entity.Edge)
	for _, edge := range edges {
		relSet.Add(idOf(edge.Target))
		byTarget[edge.Target] = edge
	}

	both := roaring.And(geoSet, relSet)
	union := roaring.Or(geoSet, relSet)

	params := e.graph.Params()
	var out []Ranked
	it := union.Iterator()
	for it.HasNext() {
		h := ordered[it.Next()]

		r := Ranked{Hash: h, Distance: math.Pi}
		if d, ok := distance[h]; ok {
			r.Distance = d
		} else if p, err := e.pointOf(ctx, kind, h); err == nil {
			// Relational-only candidate: verify geometry if it lives in
			// the queried tier.
			r.Distance = geometry.Geodesic(point, p)
		}

		geoScore := 1 - r.Distance/math.Pi
		var relScore float64
		if edge, ok := byTarget[h]; ok {
			r.Rating = edge.Rating
			r.EvidenceCount = edge.EvidenceCount
			relScore = edge.Rating / params.Ceiling
		}
		r.Score = e.opts.GeometricWeight*geoScore + e.opts.RelationalWeight*relScore
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].EvidenceCount != out[j].EvidenceCount {
			return out[i].EvidenceCount > out[j].EvidenceCount
		}
		bi, bj := both.Contains(ids[out[i].Hash]), both.Contains(ids[out[j].Hash])
		if bi != bj {
			return bi
		}
		return out[i].Hash.String() < out[j].Hash.String()
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
