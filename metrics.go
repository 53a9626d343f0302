package semsphere

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational measurements. Implement it to
// integrate with monitoring systems; every hook must be cheap and safe
// for concurrent use.
type MetricsCollector interface {
	// RecordIngest is called after each document ingestion.
	RecordIngest(tokens int, duration time.Duration, err error)

	// RecordQuery is called after each query; kind is one of
	// "proximity", "relationship", "multihop", "combined".
	RecordQuery(kind string, duration time.Duration, err error)

	// RecordObserve is called after each edge observation.
	RecordObserve(duration time.Duration, err error)

	// RecordSnapshot is called after each snapshot save or load.
	RecordSnapshot(duration time.Duration, err error)
}

// NoopMetricsCollector discards all measurements.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordQuery(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordObserve(time.Duration, error)       {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)      {}

// BasicMetricsCollector keeps simple in-memory counters. Useful for
// debugging without external dependencies.
type BasicMetricsCollector struct {
	IngestCount      atomic.Int64
	IngestErrors     atomic.Int64
	IngestTokens     atomic.Int64
	IngestTotalNanos atomic.Int64

	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryTotalNanos atomic.Int64

	ObserveCount  atomic.Int64
	ObserveErrors atomic.Int64

	SnapshotCount  atomic.Int64
	SnapshotErrors atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(tokens int, duration time.Duration, err error) {
	b.IngestCount.Add(1)
	b.IngestTokens.Add(int64(tokens))
	b.IngestTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.IngestErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_ string, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordObserve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordObserve(_ time.Duration, err error) {
	b.ObserveCount.Add(1)
	if err != nil {
		b.ObserveErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(_ time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	IngestCount    int64
	IngestErrors   int64
	IngestTokens   int64
	IngestAvgNanos int64
	QueryCount     int64
	QueryErrors    int64
	QueryAvgNanos  int64
	ObserveCount   int64
	ObserveErrors  int64
	SnapshotCount  int64
	SnapshotErrors int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() Stats {
	s := Stats{
		IngestCount:    b.IngestCount.Load(),
		IngestErrors:   b.IngestErrors.Load(),
		IngestTokens:   b.IngestTokens.Load(),
		QueryCount:     b.QueryCount.Load(),
		QueryErrors:    b.QueryErrors.Load(),
		ObserveCount:   b.ObserveCount.Load(),
		ObserveErrors:  b.ObserveErrors.Load(),
		SnapshotCount:  b.SnapshotCount.Load(),
		SnapshotErrors: b.SnapshotErrors.Load(),
	}
	if s.IngestCount > 0 {
		s.IngestAvgNanos = b.IngestTotalNanos.Load() / s.IngestCount
	}
	if s.QueryCount > 0 {
		s.QueryAvgNanos = b.QueryTotalNanos.Load() / s.QueryCount
	}
	return s
}
