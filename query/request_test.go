package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semsphere/semsphere/entity"
)

func TestQueryProximityEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	whale := f.word(t, "whale")
	f.word(t, "sea")
	f.word(t, "harpoon")

	resp, err := f.engine.Query(ctx, Request{
		Mode:   ModeProximity,
		Kind:   entity.KindComposition,
		Anchor: whale.Hash,
		K:      1,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, whale.Hash, resp.Results[0].Hash)
	assert.Equal(t, "whale", resp.Results[0].DisplayText)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-9)
	assert.False(t, resp.Partial)
}

func TestQueryRelationshipEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	captain := f.word(t, "captain")
	ahab := f.word(t, "ahab")
	ship := f.word(t, "ship")
	f.observe(t, captain.Hash, ahab.Hash, 20)
	f.observe(t, captain.Hash, ship.Hash, 1)

	resp, err := f.engine.Query(ctx, Request{
		Mode:     ModeRelationship,
		Anchor:   captain.Hash,
		EdgeType: "relates_to",
		K:        2,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, ahab.Hash, resp.Results[0].Hash)
	assert.Equal(t, "ahab", resp.Results[0].DisplayText)
	assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestQueryMultiHopEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a := f.word(t, "pequod")
	b := f.word(t, "deck")
	c := f.word(t, "mast")
	f.observe(t, a.Hash, b.Hash, 3)
	f.observe(t, b.Hash, c.Hash, 3)

	resp, err := f.engine.Query(ctx, Request{
		Mode:     ModeMultiHop,
		Anchor:   a.Hash,
		Target:   c.Hash,
		EdgeType: "relates_to",
		MaxHops:  3,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, b.Hash, resp.Results[0].Hash)
	assert.Equal(t, c.Hash, resp.Results[1].Hash)
	assert.False(t, resp.Partial)

	// Budget truncation is reported on the response even when the path
	// lookup fails.
	resp, err = f.engine.Query(ctx, Request{
		Mode:     ModeMultiHop,
		Anchor:   a.Hash,
		Target:   c.Hash,
		EdgeType: "relates_to",
		MaxHops:  1,
	})
	assert.ErrorIs(t, err, ErrNoPath)
	require.NotNil(t, resp)
	assert.True(t, resp.Partial)
}

func TestQueryCombinedEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	captain := f.word(t, "captain")
	ahab := f.word(t, "ahab")
	f.observe(t, captain.Hash, ahab.Hash, 30)

	resp, err := f.engine.Query(ctx, Request{
		Mode:     ModeCombined,
		Kind:     entity.KindComposition,
		Anchor:   captain.Hash,
		Point:    &ahab.Point,
		EdgeType: "relates_to",
		K:        1,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, ahab.Hash, resp.Results[0].Hash)
	assert.Equal(t, "ahab", resp.Results[0].DisplayText)
}

func TestQueryValidatesRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.engine.Query(ctx, Request{Mode: "telepathy"})
	assert.Error(t, err)

	_, err = f.engine.Query(ctx, Request{Mode: ModeProximity, Kind: entity.KindComposition, K: 1})
	assert.Error(t, err)
}
