package snapshot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semsphere/semsphere/blobstore"
	"github.com/semsphere/semsphere/codec"
	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/graph"
	"github.com/semsphere/semsphere/hierarchy"
	"github.com/semsphere/semsphere/ingest"
	"github.com/semsphere/semsphere/store"
)

func populated(t *testing.T) *store.Memory {
	t.Helper()
	s := store.NewMemory()
	p := ingest.New(hierarchy.NewBuilder(s, 64), graph.New(s))
	_, err := p.IngestSequence(context.Background(), "doc", []string{"call", "me", "ishmael"})
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, compression := range []string{CompressionZstd, CompressionLZ4, CompressionNone} {
		t.Run(compression, func(t *testing.T) {
			src := populated(t)
			bs := blobstore.NewMemoryStore()

			err := SaveMemory(ctx, bs, "snap.bin", src, func(o *Options) {
				o.Compression = compression
			})
			require.NoError(t, err)

			loaded, err := LoadMemory(ctx, bs, "snap.bin")
			require.NoError(t, err)

			want, err := src.Counts(ctx)
			require.NoError(t, err)
			got, err := loaded.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadHonoursWrittenCodec(t *testing.T) {
	ctx := context.Background()
	src := populated(t)
	bs := blobstore.NewMemoryStore()

	// Write with the stdlib codec regardless of the default.
	err := SaveMemory(ctx, bs, "snap.bin", src, func(o *Options) {
		o.Codec = codec.JSON{}
	})
	require.NoError(t, err)

	loaded, err := LoadMemory(ctx, bs, "snap.bin")
	require.NoError(t, err)
	counts, err := loaded.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Compositions)
}

func TestLoadRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	require.NoError(t, bs.Put(ctx, "bad", strings.NewReader("not a snapshot")))

	_, err := Load(ctx, bs, "bad")
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	_, err := Load(context.Background(), bs, "nope")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestSaveRejectsUnknownCompression(t *testing.T) {
	src := populated(t)
	bs := blobstore.NewMemoryStore()
	err := SaveMemory(context.Background(), bs, "snap.bin", src, func(o *Options) {
		o.Compression = "brotli"
	})
	assert.Error(t, err)
}

func TestSnapshotPreservesEdges(t *testing.T) {
	ctx := context.Background()
	src := populated(t)
	bs := blobstore.NewMemoryStore()

	require.NoError(t, SaveMemory(ctx, bs, "snap.bin", src))
	loaded, err := LoadMemory(ctx, bs, "snap.bin")
	require.NoError(t, err)

	snap := src.Export()
	require.NotEmpty(t, snap.Edges)
	for _, e := range snap.Edges {
		got, err := loaded.GetEdge(ctx, e.Source, e.Target, e.Type)
		require.NoError(t, err)
		assert.InDelta(t, e.Rating, got.Rating, 1e-9)
		assert.Greater(t, got.Rating, entity.DefaultRating)
		assert.Equal(t, e.EvidenceCount, got.EvidenceCount)
	}
}
