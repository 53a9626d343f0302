// Package snapshot persists a full in-memory substrate through a
// BlobStore as a single self-describing file: a fixed header naming the
// codec and compression, followed by the compressed, codec-encoded tier
// sections. Files are always decoded with the codec and compression they
// were written with.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/semsphere/semsphere/blobstore"
	"github.com/semsphere/semsphere/codec"
	"github.com/semsphere/semsphere/store"
)

// magic identifies substrate snapshot files.
var magic = [4]byte{'S', 'S', 'U', 'B'}

// Version is the current container format version.
const Version = 1

// Compression names accepted by Options.
const (
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
	CompressionNone = "none"
)

// Options selects the encoding of newly written snapshots.
type Options struct {
	Codec       codec.Codec
	Compression string
}

// DefaultOptions compress with zstd and encode with the default codec.
var DefaultOptions = Options{
	Codec:       codec.Default,
	Compression: CompressionZstd,
}

// Save serializes a snapshot to the blob store under name.
func Save(ctx context.Context, bs blobstore.BlobStore, name string, snap *store.Snapshot, optFns ...func(o *Options)) error {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	payload, err := opts.Codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(Version)
	if err := writeString(&buf, opts.Codec.Name()); err != nil {
		return err
	}
	if err := writeString(&buf, opts.Compression); err != nil {
		return err
	}

	cw, err := newCompressor(opts.Compression, &buf)
	if err != nil {
		return err
	}
	if _, err := cw.Write(payload); err != nil {
		return fmt.Errorf("snapshot: compress: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("snapshot: compress: %w", err)
	}

	return bs.Put(ctx, name, &buf)
}

// Load reads a snapshot written by Save.
func Load(ctx context.Context, bs blobstore.BlobStore, name string) (*store.Snapshot, error) {
	rc, err := bs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var hdr [5]byte
	if _, err := io.ReadFull(rc, hdr[:]); err != nil {
		return nil, fmt.Errorf("snapshot: header: %w", err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return nil, fmt.Errorf("snapshot: bad magic %q", hdr[:4])
	}
	if hdr[4] != Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", hdr[4])
	}

	codecName, err := readString(rc)
	if err != nil {
		return nil, err
	}
	compression, err := readString(rc)
	if err != nil {
		return nil, err
	}

	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("snapshot: unknown codec %q", codecName)
	}
	dr, err := newDecompressor(compression, rc)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	payload, err := io.ReadAll(dr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decompress: %w", err)
	}

	var snap store.Snapshot
	if err := c.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return &snap, nil
}

// SaveMemory exports a Memory store and saves it.
func SaveMemory(ctx context.Context, bs blobstore.BlobStore, name string, m *store.Memory, optFns ...func(o *Options)) error {
	return Save(ctx, bs, name, m.Export(), optFns...)
}

// LoadMemory loads a snapshot into a fresh Memory store.
func LoadMemory(ctx context.Context, bs blobstore.BlobStore, name string) (*store.Memory, error) {
	snap, err := Load(ctx, bs, name)
	if err != nil {
		return nil, err
	}
	m := store.NewMemory()
	if err := m.Import(ctx, snap); err != nil {
		return nil, err
	}
	return m, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("snapshot: header string too long: %d", len(s))
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(r io.Reader) (string, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", fmt.Errorf("snapshot: header: %w", err)
	}
	b := make([]byte, n[0])
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("snapshot: header: %w", err)
	}
	return string(b), nil
}

func newCompressor(name string, w io.Writer) (io.WriteCloser, error) {
	switch name {
	case CompressionZstd:
		return zstd.NewWriter(w)
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown compression %q", name)
	}
}

func newDecompressor(name string, r io.Reader) (io.ReadCloser, error) {
	switch name {
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionNone:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown compression %q", name)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
