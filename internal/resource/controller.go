package resource

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// EncodeWorkers is the maximum number of parts encoded concurrently.
	// If 0, defaults to GOMAXPROCS.
	EncodeWorkers int64

	// IOLimitBytesPerSec throttles background rewrites such as migration.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller bounds encode concurrency and background IO.
type Controller struct {
	cfg Config

	workers   *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.EncodeWorkers <= 0 {
		cfg.EncodeWorkers = int64(runtime.GOMAXPROCS(0))
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.EncodeWorkers),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Workers returns the number of encode worker slots.
func (c *Controller) Workers() int {
	if c == nil {
		return runtime.GOMAXPROCS(0)
	}
	return int(c.cfg.EncodeWorkers)
}

// IOLimit returns the configured IO limit in bytes per second (0 if unlimited).
func (c *Controller) IOLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.IOLimitBytesPerSec
}

// AcquireWorker reserves an encode worker slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workers.Acquire(ctx, 1)
}

// ReleaseWorker releases an encode worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workers.Release(1)
}

// TryAcquireWorker attempts to reserve a worker slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	if c == nil {
		return true
	}
	return c.workers.TryAcquire(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
// Requests larger than one second of budget are split.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), bytes)
}
