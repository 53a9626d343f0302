// Package semsphere fluent builder. The builder is immutable: each
// method returns a new builder with the updated configuration, so partly
// configured builders can be shared safely.
package semsphere

import (
	"github.com/semsphere/semsphere/blobstore"
	"github.com/semsphere/semsphere/graph"
	"github.com/semsphere/semsphere/ingest"
	"github.com/semsphere/semsphere/query"
)

// Builder starts a fluent Substrate configuration. The default is a
// fully in-memory substrate.
//
// Example:
//
//	sub, err := semsphere.Builder().
//	    SQLite("./substrate.db").
//	    RatingStep(48).
//	    CacheSize(1 << 16).
//	    Build()
func Builder() SubstrateBuilder {
	return SubstrateBuilder{}
}

// SubstrateBuilder is an immutable fluent builder for Substrate.
type SubstrateBuilder struct {
	sqlitePath string
	cacheSize  int
	ratingStep float64
	workers    int
	logger     *Logger
	metrics    MetricsCollector
	blobs      blobstore.BlobStore
	extra      []Option
}

// InMemory selects the in-memory store (the default).
func (b SubstrateBuilder) InMemory() SubstrateBuilder {
	b.sqlitePath = ""
	return b
}

// SQLite selects the SQLite store at path.
func (b SubstrateBuilder) SQLite(path string) SubstrateBuilder {
	b.sqlitePath = path
	return b
}

// CacheSize bounds the entity lookup caches.
func (b SubstrateBuilder) CacheSize(n int) SubstrateBuilder {
	b.cacheSize = n
	return b
}

// RatingStep sets the maximum rating movement per observation.
func (b SubstrateBuilder) RatingStep(step float64) SubstrateBuilder {
	b.ratingStep = step
	return b
}

// Workers sizes the batch ingestion pool.
func (b SubstrateBuilder) Workers(n int) SubstrateBuilder {
	b.workers = n
	return b
}

// Logger sets the structured logger.
func (b SubstrateBuilder) Logger(l *Logger) SubstrateBuilder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector.
func (b SubstrateBuilder) Metrics(mc MetricsCollector) SubstrateBuilder {
	b.metrics = mc
	return b
}

// Blobs sets the snapshot blob store.
func (b SubstrateBuilder) Blobs(bs blobstore.BlobStore) SubstrateBuilder {
	b.blobs = bs
	return b
}

// With appends raw options for settings without a fluent shorthand.
func (b SubstrateBuilder) With(optFns ...Option) SubstrateBuilder {
	b.extra = append(append([]Option(nil), b.extra...), optFns...)
	return b
}

// QueryWeights sets the combined-query blend.
func (b SubstrateBuilder) QueryWeights(geometric, relational float64) SubstrateBuilder {
	return b.With(WithQueryOptions(func(o *query.Options) {
		o.GeometricWeight = geometric
		o.RelationalWeight = relational
	}))
}

// Build assembles the Substrate.
func (b SubstrateBuilder) Build() (*Substrate, error) {
	var opts []Option
	if b.sqlitePath != "" {
		opts = append(opts, WithSQLite(b.sqlitePath))
	}
	if b.cacheSize > 0 {
		opts = append(opts, WithCacheSize(b.cacheSize))
	}
	if b.ratingStep > 0 {
		opts = append(opts, WithRatingParams(func(p *graph.RatingParams) {
			p.Step = b.ratingStep
		}))
	}
	if b.workers > 0 {
		opts = append(opts, WithIngestOptions(func(o *ingest.Options) {
			o.Workers = b.workers
		}))
	}
	if b.logger != nil {
		opts = append(opts, WithLogger(b.logger))
	}
	if b.metrics != nil {
		opts = append(opts, WithMetricsCollector(b.metrics))
	}
	if b.blobs != nil {
		opts = append(opts, WithBlobStore(b.blobs))
	}
	opts = append(opts, b.extra...)
	return New(opts...)
}
