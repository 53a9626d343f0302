package semsphere

import (
	"log/slog"

	"github.com/semsphere/semsphere/blobstore"
	"github.com/semsphere/semsphere/graph"
	"github.com/semsphere/semsphere/ingest"
	"github.com/semsphere/semsphere/query"
	"github.com/semsphere/semsphere/snapshot"
	"github.com/semsphere/semsphere/store"
)

type options struct {
	store      store.Store
	sqlitePath string
	blobs      blobstore.BlobStore
	logger     *Logger
	metrics    MetricsCollector
	cacheSize  int

	ratingFns   []func(*graph.RatingParams)
	queryFns    []func(*query.Options)
	ingestFns   []func(*ingest.Options)
	snapshotFns []func(*snapshot.Options)
}

// Option configures Substrate construction.
type Option func(*options)

// WithStore uses a caller-provided store. The Substrate takes ownership
// and closes it on Close.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithSQLite stores all tiers in a SQLite database at path. Use
// ":memory:" for an ephemeral database with SQL semantics.
func WithSQLite(path string) Option {
	return func(o *options) {
		o.sqlitePath = path
	}
}

// WithBlobStore sets where snapshots are saved and loaded. Required for
// SaveSnapshot/LoadSnapshot; in-memory substrates default to an
// in-memory blob store.
func WithBlobStore(bs blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobs = bs
	}
}

// WithLogger configures structured logging. Pass nil to disable.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel is a convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithCacheSize bounds the entity lookup caches used while building
// compositions and relations.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithRatingParams tunes the edge rating rule (step size, clamp range).
func WithRatingParams(fn func(*graph.RatingParams)) Option {
	return func(o *options) {
		o.ratingFns = append(o.ratingFns, fn)
	}
}

// WithQueryOptions tunes the query engine (scan windows, combined
// weights).
func WithQueryOptions(fn func(*query.Options)) Option {
	return func(o *options) {
		o.queryFns = append(o.queryFns, fn)
	}
}

// WithIngestOptions tunes the ingestion pipeline (rate limit, workers,
// co-occurrence strength, spectral parameters).
func WithIngestOptions(fn func(*ingest.Options)) Option {
	return func(o *options) {
		o.ingestFns = append(o.ingestFns, fn)
	}
}

// WithSnapshotOptions selects codec and compression for new snapshots.
func WithSnapshotOptions(fn func(*snapshot.Options)) Option {
	return func(o *options) {
		o.snapshotFns = append(o.snapshotFns, fn)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metrics:   NoopMetricsCollector{},
		logger:    NoopLogger(),
		cacheSize: 4096,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
