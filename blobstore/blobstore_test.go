package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlobStores(t *testing.T) map[string]BlobStore {
	t.Helper()

	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	return map[string]BlobStore{
		"memory": NewMemoryStore(),
		"local":  local,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, bs := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bs.Put(ctx, "snap/001.bin", strings.NewReader("hello")))

			rc, err := bs.Get(ctx, "snap/001.bin")
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "hello", string(data))
		})
	}
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	for name, bs := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := bs.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOverwriteReplaces(t *testing.T) {
	ctx := context.Background()
	for name, bs := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bs.Put(ctx, "k", strings.NewReader("v1")))
			require.NoError(t, bs.Put(ctx, "k", strings.NewReader("v2")))

			rc, err := bs.Get(ctx, "k")
			require.NoError(t, err)
			data, _ := io.ReadAll(rc)
			_ = rc.Close()
			assert.Equal(t, "v2", string(data))
		})
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, bs := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bs.Put(ctx, "k", strings.NewReader("v")))
			require.NoError(t, bs.Delete(ctx, "k"))
			require.NoError(t, bs.Delete(ctx, "k"))

			_, err := bs.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, bs := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bs.Put(ctx, "snap/a", strings.NewReader("1")))
			require.NoError(t, bs.Put(ctx, "snap/b", strings.NewReader("2")))
			require.NoError(t, bs.Put(ctx, "other/c", strings.NewReader("3")))

			names, err := bs.List(ctx, "snap/")
			require.NoError(t, err)
			assert.Equal(t, []string{"snap/a", "snap/b"}, names)

			all, err := bs.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}
