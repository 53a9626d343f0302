package semsphere

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/semsphere/semsphere/blobstore"
	"github.com/semsphere/semsphere/entity"
	"github.com/semsphere/semsphere/geometry"
	"github.com/semsphere/semsphere/graph"
	"github.com/semsphere/semsphere/hash"
	"github.com/semsphere/semsphere/hierarchy"
	"github.com/semsphere/semsphere/ingest"
	"github.com/semsphere/semsphere/query"
	"github.com/semsphere/semsphere/snapshot"
	"github.com/semsphere/semsphere/store"
)

// Substrate is the top-level handle: ingestion, the edge overlay, and
// the query engine over one store.
type Substrate struct {
	store store.Store
	mem   *store.Memory // non-nil only for in-memory stores

	graph    *graph.Graph
	builder  *hierarchy.Builder
	pipeline *ingest.Pipeline
	engine   *query.Engine

	blobs       blobstore.BlobStore
	snapshotFns []func(*snapshot.Options)

	logger  *Logger
	metrics MetricsCollector
}

// New creates a Substrate. Without WithStore or WithSQLite it runs fully
// in memory.
func New(optFns ...Option) (*Substrate, error) {
	o := applyOptions(optFns)

	s := o.store
	var mem *store.Memory
	switch {
	case s != nil:
		// Caller-provided store wins.
	case o.sqlitePath != "":
		sqlite, err := store.OpenSQLite(o.sqlitePath)
		if err != nil {
			return nil, err
		}
		s = sqlite
	default:
		mem = store.NewMemory()
		s = mem
	}
	if m, ok := s.(*store.Memory); ok {
		mem = m
	}

	blobs := o.blobs
	if blobs == nil && mem != nil {
		blobs = blobstore.NewMemoryStore()
	}

	ratingFns := make([]func(*graph.RatingParams), len(o.ratingFns))
	copy(ratingFns, o.ratingFns)
	g := graph.New(s, ratingFns...)
	b := hierarchy.NewBuilder(s, o.cacheSize)

	return &Substrate{
		store:       s,
		mem:         mem,
		graph:       g,
		builder:     b,
		pipeline:    ingest.New(b, g, o.ingestFns...),
		engine:      query.New(s, g, o.queryFns...),
		blobs:       blobs,
		snapshotFns: o.snapshotFns,
		logger:      o.logger,
		metrics:     o.metrics,
	}, nil
}

// Close releases the underlying store.
func (s *Substrate) Close() error {
	return s.store.Close()
}

// Store exposes the storage boundary for advanced use.
func (s *Substrate) Store() store.Store { return s.store }

// IngestText splits text on whitespace and ingests it as one document.
func (s *Substrate) IngestText(ctx context.Context, document, text string) (*ingest.Result, error) {
	start := time.Now()
	res, err := s.pipeline.IngestText(ctx, document, text)

	tokens := 0
	newComps := 0
	if res != nil {
		tokens = res.Tokens
		newComps = res.NewCompositions
	}
	s.metrics.RecordIngest(tokens, time.Since(start), err)
	s.logger.LogIngest(ctx, document, tokens, newComps, err)
	return res, translateError(err)
}

// IngestSequence ingests an ordered token sequence as one document.
func (s *Substrate) IngestSequence(ctx context.Context, document string, tokens []string) (*ingest.Result, error) {
	start := time.Now()
	res, err := s.pipeline.IngestSequence(ctx, document, tokens)

	newComps := 0
	if res != nil {
		newComps = res.NewCompositions
	}
	s.metrics.RecordIngest(len(tokens), time.Since(start), err)
	s.logger.LogIngest(ctx, document, len(tokens), newComps, err)
	return res, translateError(err)
}

// IngestBatch ingests documents concurrently.
func (s *Substrate) IngestBatch(ctx context.Context, docs []ingest.Document) ([]*ingest.Result, error) {
	start := time.Now()
	results, err := s.pipeline.IngestBatch(ctx, docs)

	total := 0
	for _, d := range docs {
		total += len(d.Tokens)
	}
	s.metrics.RecordIngest(total, time.Since(start), err)
	return results, translateError(err)
}

// IngestEmbeddings projects labelled vectors spectrally and stores them
// as compositions.
func (s *Substrate) IngestEmbeddings(ctx context.Context, document string, items []ingest.Embedding) ([]*entity.Composition, error) {
	start := time.Now()
	comps, err := s.pipeline.IngestEmbeddings(ctx, document, items)
	s.metrics.RecordIngest(len(items), time.Since(start), err)
	s.logger.LogProjection(ctx, len(items), err)
	return comps, translateError(err)
}

// Observe records one piece of evidence for an edge.
func (s *Substrate) Observe(ctx context.Context, obs entity.Observation) (*entity.Edge, bool, error) {
	start := time.Now()
	edge, applied, err := s.graph.Observe(ctx, obs)
	s.metrics.RecordObserve(time.Since(start), err)
	s.logger.LogObserve(ctx, obs.Type, applied, err)
	return edge, applied, translateError(err)
}

// ObserveBatch records a list of observations, returning how many
// changed a rating.
func (s *Substrate) ObserveBatch(ctx context.Context, observations []entity.Observation) (int, error) {
	start := time.Now()
	applied, err := s.pipeline.IngestEdges(ctx, observations)
	s.metrics.RecordObserve(time.Since(start), err)
	return applied, translateError(err)
}

// Nearest returns the k entities of a tier closest to point.
func (s *Substrate) Nearest(ctx context.Context, kind entity.Kind, point geometry.Vector4, k int) ([]query.Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	start := time.Now()
	matches, err := s.engine.Proximity(ctx, kind, point, k)
	s.metrics.RecordQuery("proximity", time.Since(start), err)
	s.logger.LogQuery(ctx, "proximity", len(matches), err)
	return matches, translateError(err)
}

// Neighbors returns up to limit outgoing edges of source, strongest
// first. limit <= 0 returns all.
func (s *Substrate) Neighbors(ctx context.Context, source hash.Hash, edgeType string, limit int) ([]*entity.Edge, error) {
	start := time.Now()
	edges, err := s.engine.Relationship(ctx, source, edgeType, limit)
	s.metrics.RecordQuery("relationship", time.Since(start), err)
	s.logger.LogQuery(ctx, "relationship", len(edges), err)
	return edges, translateError(err)
}

// FindPath finds the cheapest multi-hop path from source to target.
func (s *Substrate) FindPath(ctx context.Context, source, target hash.Hash, edgeType string, maxHops int) (*query.Path, error) {
	start := time.Now()
	path, err := s.engine.MultiHop(ctx, source, target, edgeType, maxHops)
	s.metrics.RecordQuery("multihop", time.Since(start), err)

	hops := 0
	if path != nil {
		hops = path.Hops()
	}
	s.logger.LogQuery(ctx, "multihop", hops, err)
	return path, translateError(err)
}

// Rank blends geometric proximity to point with relational strength from
// source into one ranked result list.
func (s *Substrate) Rank(ctx context.Context, kind entity.Kind, point geometry.Vector4, source hash.Hash, edgeType string, k int) ([]query.Ranked, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	start := time.Now()
	results, err := s.engine.Combined(ctx, kind, point, source, edgeType, k)
	s.metrics.RecordQuery("combined", time.Since(start), err)
	s.logger.LogQuery(ctx, "combined", len(results), err)
	return results, translateError(err)
}

// Query runs a generic query envelope. The typed entry points (Nearest,
// Neighbors, FindPath, Rank) are preferable in Go code; Query suits
// serialized requests crossing a process boundary.
func (s *Substrate) Query(ctx context.Context, req query.Request) (*query.Response, error) {
	start := time.Now()
	resp, err := s.engine.Query(ctx, req)
	s.metrics.RecordQuery(string(req.Mode), time.Since(start), err)

	results := 0
	if resp != nil {
		results = len(resp.Results)
	}
	s.logger.LogQuery(ctx, string(req.Mode), results, err)
	return resp, translateError(err)
}

// BuildAtom creates (or finds) the atom for an origin value.
func (s *Substrate) BuildAtom(ctx context.Context, category string, ordinal int64) (*entity.Atom, error) {
	a, _, err := s.builder.BuildAtom(ctx, category, ordinal)
	return a, translateError(err)
}

// BuildComposition creates (or finds) a composition over ordered atoms.
func (s *Substrate) BuildComposition(ctx context.Context, atoms []hash.Hash, displayText string) (*entity.Composition, error) {
	c, _, err := s.builder.BuildComposition(ctx, atoms, displayText, nil)
	return c, translateError(err)
}

// BuildRelation creates (or finds) a level-k relation over ordered
// children.
func (s *Substrate) BuildRelation(ctx context.Context, level int, children []entity.ChildRef, metadata map[string]string) (*entity.Relation, error) {
	r, _, err := s.builder.BuildRelation(ctx, level, children, metadata)
	return r, translateError(err)
}

// Atom fetches an atom by hash.
func (s *Substrate) Atom(ctx context.Context, h hash.Hash) (*entity.Atom, error) {
	a, err := s.store.GetAtom(ctx, h)
	return a, translateError(err)
}

// Composition fetches a composition by hash.
func (s *Substrate) Composition(ctx context.Context, h hash.Hash) (*entity.Composition, error) {
	c, err := s.store.GetComposition(ctx, h)
	return c, translateError(err)
}

// Relation fetches a relation by hash.
func (s *Substrate) Relation(ctx context.Context, h hash.Hash) (*entity.Relation, error) {
	r, err := s.store.GetRelation(ctx, h)
	return r, translateError(err)
}

// Edge fetches one edge.
func (s *Substrate) Edge(ctx context.Context, source, target hash.Hash, edgeType string) (*entity.Edge, error) {
	e, err := s.graph.Edge(ctx, source, target, edgeType)
	return e, translateError(err)
}

// Trajectory derives (and caches) the geometric walk summary of a
// relation.
func (s *Substrate) Trajectory(ctx context.Context, relation hash.Hash) (*entity.Trajectory, error) {
	t, err := s.builder.DeriveTrajectory(ctx, relation)
	return t, translateError(err)
}

// Counts reports per-tier row counts.
func (s *Substrate) Counts(ctx context.Context) (store.Counts, error) {
	c, err := s.store.Counts(ctx)
	return c, translateError(err)
}

// ErrSnapshotUnsupported is returned when snapshots are requested on a
// store that is not the in-memory one (SQLite is durable on its own).
var ErrSnapshotUnsupported = errors.New("snapshots require the in-memory store")

// SaveSnapshot serializes the in-memory store to the configured blob
// store.
func (s *Substrate) SaveSnapshot(ctx context.Context, name string) error {
	if s.mem == nil || s.blobs == nil {
		return ErrSnapshotUnsupported
	}

	start := time.Now()
	err := snapshot.SaveMemory(ctx, s.blobs, name, s.mem, s.snapshotFns...)
	s.metrics.RecordSnapshot(time.Since(start), err)
	s.logger.LogSnapshot(ctx, name, err)
	return err
}

// LoadSnapshot loads a snapshot into the in-memory store. Loading is
// additive: content already present deduplicates.
func (s *Substrate) LoadSnapshot(ctx context.Context, name string) error {
	if s.mem == nil || s.blobs == nil {
		return ErrSnapshotUnsupported
	}

	start := time.Now()
	snap, err := snapshot.Load(ctx, s.blobs, name)
	if err == nil {
		err = s.mem.Import(ctx, snap)
	}
	s.metrics.RecordSnapshot(time.Since(start), err)
	s.logger.LogSnapshot(ctx, name, err)
	return translateError(err)
}
