package idxstore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/idxstore/engine"
	"github.com/hupe1980/idxstore/storagepart"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
// PrometheusMetricsCollector is a ready-made Prometheus implementation.
type MetricsCollector interface {
	// RecordCommit is called after each commit of a write session.
	// parts is the number of appended parts, bytes their encoded size.
	RecordCommit(parts int, bytes int64, duration time.Duration, err error)

	// RecordEncode is called for every part encoded during a commit.
	RecordEncode(t storagepart.Type, bytes int, duration time.Duration, err error)

	// RecordDecode is called for every part read back from the store.
	RecordDecode(t storagepart.Type, version uint16, duration time.Duration, err error)

	// RecordMigration is called after each migration run.
	RecordMigration(parts int, bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCommit(int, int64, time.Duration, error)               {}
func (NoopMetricsCollector) RecordEncode(storagepart.Type, int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordDecode(storagepart.Type, uint16, time.Duration, error) {}
func (NoopMetricsCollector) RecordMigration(int, int64, time.Duration, error)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitParts      atomic.Int64
	CommitBytes      atomic.Int64
	CommitTotalNanos atomic.Int64
	EncodeCount      atomic.Int64
	EncodeErrors     atomic.Int64
	EncodeBytes      atomic.Int64
	DecodeCount      atomic.Int64
	DecodeErrors     atomic.Int64
	DecodeTotalNanos atomic.Int64
	MigrationCount   atomic.Int64
	MigrationErrors  atomic.Int64
	MigrationParts   atomic.Int64
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(parts int, bytes int64, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.CommitParts.Add(int64(parts))
	b.CommitBytes.Add(bytes)
}

// RecordEncode implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEncode(_ storagepart.Type, bytes int, _ time.Duration, err error) {
	b.EncodeCount.Add(1)
	if err != nil {
		b.EncodeErrors.Add(1)
		return
	}
	b.EncodeBytes.Add(int64(bytes))
}

// RecordDecode implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDecode(_ storagepart.Type, _ uint16, duration time.Duration, err error) {
	b.DecodeCount.Add(1)
	b.DecodeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DecodeErrors.Add(1)
	}
}

// RecordMigration implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMigration(parts int, _ int64, _ time.Duration, err error) {
	b.MigrationCount.Add(1)
	if err != nil {
		b.MigrationErrors.Add(1)
		return
	}
	b.MigrationParts.Add(int64(parts))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CommitCount:     b.CommitCount.Load(),
		CommitErrors:    b.CommitErrors.Load(),
		CommitParts:     b.CommitParts.Load(),
		CommitBytes:     b.CommitBytes.Load(),
		CommitAvgNanos:  avg(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
		EncodeCount:     b.EncodeCount.Load(),
		EncodeErrors:    b.EncodeErrors.Load(),
		EncodeBytes:     b.EncodeBytes.Load(),
		DecodeCount:     b.DecodeCount.Load(),
		DecodeErrors:    b.DecodeErrors.Load(),
		DecodeAvgNanos:  avg(b.DecodeTotalNanos.Load(), b.DecodeCount.Load()),
		MigrationCount:  b.MigrationCount.Load(),
		MigrationErrors: b.MigrationErrors.Load(),
		MigrationParts:  b.MigrationParts.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CommitCount     int64
	CommitErrors    int64
	CommitParts     int64
	CommitBytes     int64
	CommitAvgNanos  int64
	EncodeCount     int64
	EncodeErrors    int64
	EncodeBytes     int64
	DecodeCount     int64
	DecodeErrors    int64
	DecodeAvgNanos  int64
	MigrationCount  int64
	MigrationErrors int64
	MigrationParts  int64
}

// observer forwards engine events to the collector and the logger.
type observer struct {
	collector MetricsCollector
	logger    *Logger
}

var _ engine.MetricsObserver = (*observer)(nil)

func (o *observer) OnCommit(d time.Duration, parts int, bytes int64, err error) {
	o.collector.RecordCommit(parts, bytes, d, err)
}

func (o *observer) OnEncode(t storagepart.Type, d time.Duration, bytes int, err error) {
	o.collector.RecordEncode(t, bytes, d, err)
}

func (o *observer) OnDecode(t storagepart.Type, version uint16, d time.Duration, err error) {
	o.collector.RecordDecode(t, version, d, err)
	if IsFatal(err) {
		o.logger.LogCorruption(context.Background(), t.String(), err)
	}
}

func (o *observer) OnMigration(d time.Duration, parts int, bytes int64, err error) {
	o.collector.RecordMigration(parts, bytes, d, err)
}
