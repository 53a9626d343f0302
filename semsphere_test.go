package semsphere

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/hash"
	"github.com/semsphere/semsphere/ingest"
)

func TestIngestAndLookup(t *testing.T) {
	ctx := context.Background()
	sub, err := New()
	require.NoError(t, err)
	defer sub.Close()

	res, err := sub.IngestSequence(ctx, "moby-dick#1", []string{"Call", "me", "Ishmael"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Tokens)

	rel, err := sub.Relation(ctx, res.Relation)
	require.NoError(t, err)
	require.Len(t, rel.Children, 3)

	ishmael, err := sub.Composition(ctx, rel.Children[2].Hash)
	require.NoError(t, err)
	assert.Equal(t, "Ishmael", ishmael.DisplayText)

	// Consecutive tokens got co-occurrence edges.
	edges, err := sub.Neighbors(ctx, rel.Children[0].Hash, ingest.EdgeTypeFollows, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, rel.Children[1].Hash, edges[0].Target)
}

func TestIngestionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sub, err := New()
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.IngestText(ctx, "doc", "the white whale rose from the deep")
	require.NoError(t, err)
	before, err := sub.Counts(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = sub.IngestText(ctx, "doc", "the white whale rose from the deep")
		require.NoError(t, err)
	}
	after, err := sub.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCrossContextDeduplication(t *testing.T) {
	ctx := context.Background()
	sub, err := New()
	require.NoError(t, err)
	defer sub.Close()

	r1, err := sub.IngestSequence(ctx, "ch-1", []string{"the", "whale", "breached"})
	require.NoError(t, err)
	r2, err := sub.IngestSequence(ctx, "ch-42", []string{"a", "whale", "sounded"})
	require.NoError(t, err)

	rel1, err := sub.Relation(ctx, r1.Relation)
	require.NoError(t, err)
	rel2, err := sub.Relation(ctx, r2.Relation)
	require.NoError(t, err)

	// Both documents reference the one "whale" row.
	assert.Equal(t, rel1.Children[1].Hash, rel2.Children[1].Hash)
}

// compositionOf resolves the stored composition for a token.
func compositionOf(t *testing.T, sub *Substrate, token string) *entity.Composition {
	t.Helper()
	ctx := context.Background()

	var atoms []hash.Hash
	for _, r := range token {
		a, err := sub.BuildAtom(ctx, categoryOf(r), int64(r))
		require.NoError(t, err)
		atoms = append(atoms, a.Hash)
	}
	c, err := sub.BuildComposition(ctx, atoms, token)
	require.NoError(t, err)
	return c
}

func categoryOf(r rune) string {
	if r >= 'A' && r <= 'Z' {
		return "Lu"
	}
	return "Ll"
}

func TestMobyDickWalkthrough(t *testing.T) {
	ctx := context.Background()
	sub, err := New()
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.IngestSequence(ctx, "moby-dick#1", []string{"Call", "me", "Ishmael"})
	require.NoError(t, err)

	captain := compositionOf(t, sub, "Captain")
	ahab := compositionOf(t, sub, "Ahab")

	// Repeated strong evidence pushes the captain-to-ahab edge well above
	// the default rating.
	var edge *entity.Edge
	for i := 0; i < 200; i++ {
		edge, _, err = sub.Observe(ctx, entity.Observation{
			Source:     captain.Hash,
			Target:     ahab.Hash,
			Type:       "refers_to",
			Strength:   1,
			Provenance: fmt.Sprintf("moby-dick#%d", i),
		})
		require.NoError(t, err)
		if edge.Rating >= 1900 {
			break
		}
	}
	require.NotNil(t, edge)
	assert.GreaterOrEqual(t, edge.Rating, 1900.0)

	// The strongest neighbour of Captain is Ahab.
	edges, err := sub.Neighbors(ctx, captain.Hash, "refers_to", 1)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, ahab.Hash, edges[0].Target)

	// And the blended ranking agrees when asking near Ahab's own point.
	ranked, err := sub.Rank(ctx, entity.KindComposition, ahab.Point, captain.Hash, "refers_to", 1)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, ahab.Hash, ranked[0].Hash)
}

func TestFindPathTerminatesWithCycles(t *testing.T) {
	ctx := context.Background()
	sub, err := New()
	require.NoError(t, err)
	defer sub.Close()

	a := compositionOf(t, sub, "alpha")
	b := compositionOf(t, sub, "beta")
	c := compositionOf(t, sub, "gamma")
	far := compositionOf(t, sub, "unreachable")

	for i, pair := range [][2]hash.Hash{
		{a.Hash, b.Hash}, {b.Hash, c.Hash}, {c.Hash, a.Hash},
	} {
		_, _, err := sub.Observe(ctx, entity.Observation{
			Source: pair[0], Target: pair[1],
			Type: "linked", Strength: 1,
			Provenance: fmt.Sprintf("seed-%d", i),
		})
		require.NoError(t, err)
	}

	_, err = sub.FindPath(ctx, a.Hash, far.Hash, "linked", 3)
	assert.ErrorIs(t, err, ErrNoPath)

	path, err := sub.FindPath(ctx, a.Hash, c.Hash, "linked", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, path.Hops())
}

func TestNearestValidatesK(t *testing.T) {
	sub, err := New()
	require.NoError(t, err)
	defer sub.Close()

	c := compositionOf(t, sub, "anything")
	_, err = sub.Nearest(context.Background(), entity.KindComposition, c.Point, 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestObserveRejectsUnknownEndpoints(t *testing.T) {
	sub, err := New()
	require.NoError(t, err)
	defer sub.Close()

	_, _, err = sub.Observe(context.Background(), entity.Observation{
		Source: hash.SumString("ghost-1"), Target: hash.SumString("ghost-2"),
		Type: "linked", Strength: 1, Provenance: "p",
	})
	var dangling *ErrDanglingReference
	assert.ErrorAs(t, err, &dangling)
}

func TestSnapshotRoundTripThroughFacade(t *testing.T) {
	ctx := context.Background()
	sub, err := New()
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.IngestText(ctx, "doc", "call me ishmael")
	require.NoError(t, err)
	require.NoError(t, sub.SaveSnapshot(ctx, "snap-1"))

	restored, err := New()
	require.NoError(t, err)
	defer restored.Close()

	// Fresh substrate, same blob store.
	restored.blobs = sub.blobs
	require.NoError(t, restored.LoadSnapshot(ctx, "snap-1"))

	want, err := sub.Counts(ctx)
	require.NoError(t, err)
	got, err := restored.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshotUnsupportedOnSQLite(t *testing.T) {
	sub, err := New(WithSQLite(":memory:"))
	require.NoError(t, err)
	defer sub.Close()

	err = sub.SaveSnapshot(context.Background(), "snap")
	assert.ErrorIs(t, err, ErrSnapshotUnsupported)
}

func TestMetricsAreCollected(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	sub, err := New(WithMetricsCollector(metrics))
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.IngestText(ctx, "doc", "white whale")
	require.NoError(t, err)

	c := compositionOf(t, sub, "white")
	_, err = sub.Neighbors(ctx, c.Hash, "", 0)
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.IngestCount)
	assert.Equal(t, int64(2), stats.IngestTokens)
	assert.GreaterOrEqual(t, stats.QueryCount, int64(1))
}
