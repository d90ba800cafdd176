package engine

import (
	"time"

	"github.com/hupe1980/idxstore/storagepart"
)

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnCommit is called when a session commit completes.
	OnCommit(duration time.Duration, parts int, bytes int64, err error)

	// OnEncode is called after a part is encoded.
	OnEncode(t storagepart.Type, duration time.Duration, bytes int, err error)

	// OnDecode is called after a part is decoded from the store.
	OnDecode(t storagepart.Type, version uint16, duration time.Duration, err error)

	// OnMigration is called when a migration run completes.
	OnMigration(duration time.Duration, parts int, bytes int64, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnCommit(time.Duration, int, int64, error)               {}
func (NoopMetricsObserver) OnEncode(storagepart.Type, time.Duration, int, error)    {}
func (NoopMetricsObserver) OnDecode(storagepart.Type, uint16, time.Duration, error) {}
func (NoopMetricsObserver) OnMigration(time.Duration, int, int64, error)            {}
