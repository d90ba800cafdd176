package engine

import (
	"log/slog"

	"github.com/hupe1980/idxstore/codec"
	"github.com/hupe1980/idxstore/internal/resource"
)

// DefaultCacheSize is the default number of decoded parts kept in memory.
const DefaultCacheSize = 4096

type options struct {
	logger    *slog.Logger
	metrics   MetricsObserver
	rc        *resource.Controller
	registry  *codec.Registry
	cacheSize int
}

// Option configures a Catalog.
type Option func(*options)

// WithLogger sets the logger for the catalog.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsObserver sets the metrics observer for the catalog.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(o *options) {
		o.metrics = observer
	}
}

// WithResourceController sets the controller bounding encode workers and
// migration IO.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithRegistry replaces the default codec registry.
func WithRegistry(r *codec.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithCacheSize sets the number of decoded parts cached by store offset.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

func defaultOptions() options {
	return options{
		logger:    slog.New(slog.DiscardHandler),
		metrics:   NoopMetricsObserver{},
		cacheSize: DefaultCacheSize,
	}
}
