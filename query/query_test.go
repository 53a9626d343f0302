package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/graph"
	"github.com/semsphere/semsphere/hash"
	"github.com/semsphere/semsphere/hierarchy"
	"github.com/semsphere/semsphere/store"
)

type fixture struct {
	store   *store.Memory
	graph   *graph.Graph
	builder *hierarchy.Builder
	engine  *Engine
}

func newFixture() *fixture {
	s := store.NewMemory()
	g := graph.New(s)
	return &fixture{
		store:   s,
		graph:   g,
		builder: hierarchy.NewBuilder(s, 256),
		engine:  New(s, g),
	}
}

func (f *fixture) word(t *testing.T, text string) *entity.Composition {
	t.Helper()
	ctx := context.Background()

	var atoms []hash.Hash
	for _, r := range text {
		a, _, err := f.builder.BuildAtom(ctx, "rune", int64(r))
		require.NoError(t, err)
		atoms = append(atoms, a.Hash)
	}
	c, _, err := f.builder.BuildComposition(ctx, atoms, text, nil)
	require.NoError(t, err)
	return c
}

func (f *fixture) observe(t *testing.T, src, dst hash.Hash, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		_, _, err := f.graph.Observe(context.Background(), entity.Observation{
			Source: src, Target: dst,
			Type: "relates_to", Strength: 1,
			Provenance: fmt.Sprintf("doc-%d", i),
		})
		require.NoError(t, err)
	}
}

func TestProximityFindsNearestAtom(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	var atoms []*entity.Atom
	for i := int64(0); i < 200; i++ {
		a, _, err := f.builder.BuildAtom(ctx, "rune", i)
		require.NoError(t, err)
		atoms = append(atoms, a)
	}

	// Query exactly at a known atom: it must come back first at distance 0.
	probe := atoms[42]
	matches, err := f.engine.Proximity(ctx, entity.KindAtom, probe.Position, 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, probe.Hash, matches[0].Hash)
	assert.InDelta(t, 0, matches[0].Distance, 1e-9)

	// Distances are non-decreasing.
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i].Distance, matches[i-1].Distance)
	}
}

func TestProximityExactOverWideScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	for i := int64(0); i < 64; i++ {
		_, _, err := f.builder.BuildAtom(ctx, "rune", i)
		require.NoError(t, err)
	}

	// Brute-force ground truth against the engine's answer.
	probe := geometry.Vector4{0, 1, 0, 0}
	matches, err := f.engine.Proximity(ctx, entity.KindAtom, probe, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	var best float64 = 10
	for i := int64(0); i < 64; i++ {
		a, err := f.store.GetAtom(ctx, hash.Origin("rune", i))
		require.NoError(t, err)
		if d := geometry.Geodesic(probe, a.Position); d < best {
			best = d
		}
	}
	assert.InDelta(t, best, matches[0].Distance, 1e-9)
}

func TestProximityRejectsNonPositiveK(t *testing.T) {
	f := newFixture()
	_, err := f.engine.Proximity(context.Background(), entity.KindAtom, geometry.DefaultPoint, 0)
	assert.Error(t, err)
}

func TestRelationshipRanksByRating(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	src := f.word(t, "captain")
	strong := f.word(t, "ahab")
	weak := f.word(t, "boat")

	f.observe(t, src.Hash, strong.Hash, 6)
	f.observe(t, src.Hash, weak.Hash, 1)

	edges, err := f.engine.Relationship(ctx, src.Hash, "relates_to", 0)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, strong.Hash, edges[0].Target)

	limited, err := f.engine.Relationship(ctx, src.Hash, "relates_to", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, strong.Hash, limited[0].Target)
}

func TestMultiHopFindsPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a := f.word(t, "a")
	b := f.word(t, "b")
	c := f.word(t, "c")

	f.observe(t, a.Hash, b.Hash, 3)
	f.observe(t, b.Hash, c.Hash, 3)

	path, err := f.engine.MultiHop(ctx, a.Hash, c.Hash, "relates_to", 3)
	require.NoError(t, err)
	require.Equal(t, 2, path.Hops())
	assert.Equal(t, b.Hash, path.Edges[0].Target)
	assert.Equal(t, c.Hash, path.Edges[1].Target)
	assert.False(t, path.Partial)
	assert.Greater(t, path.Cost, 0.0)
}

func TestMultiHopPrefersStrongEdges(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a := f.word(t, "a")
	weak := f.word(t, "weak")
	strong := f.word(t, "strong")
	goal := f.word(t, "goal")

	// Two 2-hop routes; the one through "strong" carries more evidence.
	f.observe(t, a.Hash, weak.Hash, 1)
	f.observe(t, weak.Hash, goal.Hash, 1)
	f.observe(t, a.Hash, strong.Hash, 8)
	f.observe(t, strong.Hash, goal.Hash, 8)

	path, err := f.engine.MultiHop(ctx, a.Hash, goal.Hash, "relates_to", 4)
	require.NoError(t, err)
	require.Equal(t, 2, path.Hops())
	assert.Equal(t, strong.Hash, path.Edges[0].Target)
}

func TestMultiHopTerminatesOnCycles(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a := f.word(t, "a")
	b := f.word(t, "b")
	c := f.word(t, "c")
	island := f.word(t, "island")

	// a -> b -> c -> a is a cycle; island is unreachable.
	f.observe(t, a.Hash, b.Hash, 2)
	f.observe(t, b.Hash, c.Hash, 2)
	f.observe(t, c.Hash, a.Hash, 2)

	path, err := f.engine.MultiHop(ctx, a.Hash, island.Hash, "relates_to", 3)
	require.ErrorIs(t, err, ErrNoPath)
	assert.False(t, path.Partial)
}

func TestMultiHopHopBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// Chain a -> b -> c -> d: d is 3 hops out.
	words := []*entity.Composition{
		f.word(t, "wa"), f.word(t, "wb"), f.word(t, "wc"), f.word(t, "wd"),
	}
	for i := 0; i < 3; i++ {
		f.observe(t, words[i].Hash, words[i+1].Hash, 2)
	}

	// Budget 2 cannot reach it, and reports the truncation.
	path, err := f.engine.MultiHop(ctx, words[0].Hash, words[3].Hash, "relates_to", 2)
	require.ErrorIs(t, err, ErrNoPath)
	assert.True(t, path.Partial)

	// Budget 3 finds it.
	path, err = f.engine.MultiHop(ctx, words[0].Hash, words[3].Hash, "relates_to", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, path.Hops())
}

func TestMultiHopSameSourceTarget(t *testing.T) {
	f := newFixture()
	a := f.word(t, "self")

	path, err := f.engine.MultiHop(context.Background(), a.Hash, a.Hash, "", 3)
	require.NoError(t, err)
	assert.Zero(t, path.Hops())
}

func TestCombinedBlendsSignals(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	src := f.word(t, "query")
	related := f.word(t, "related")
	f.word(t, "noise")
	f.word(t, "other")

	// Heavy evidence toward "related".
	f.observe(t, src.Hash, related.Hash, 10)

	// Query at the related composition's own point: it wins on both
	// signals.
	results, err := f.engine.Combined(ctx, entity.KindComposition, related.Point, src.Hash, "relates_to", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, related.Hash, results[0].Hash)
	assert.Greater(t, results[0].Rating, entity.DefaultRating)
	assert.Equal(t, int64(10), results[0].EvidenceCount)

	// Scores are non-increasing.
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestCombinedRelationalOnlyCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	src := f.word(t, "src")
	far := f.word(t, "far")
	f.observe(t, src.Hash, far.Hash, 2)

	// Query from the antipode of "far": geometry carries nothing, the edge
	// still surfaces the candidate.
	anti := geometry.Scale(far.Point, -1)
	unit, ok := geometry.Normalize(anti)
	require.True(t, ok)

	results, err := f.engine.Combined(ctx, entity.KindComposition, unit, src.Hash, "relates_to", 5)
	require.NoError(t, err)

	found := false
	for _, r := range results {
		if r.Hash == far.Hash {
			found = true
			assert.Greater(t, r.Rating, 0.0)
		}
	}
	assert.True(t, found)
}
