package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultFanout is the IO concurrency used when Config.IOFanout is zero.
const DefaultFanout = 8

// Config sets the limits shared by every store wrapper and cache of one
// computation.
type Config struct {
	// MemoryBytes caps bytes held by area caches and input block caches.
	// Zero tracks usage without a cap.
	MemoryBytes int64
	// IOFanout caps concurrent store calls from cache fills and teardown.
	IOFanout int
	// IOBytesPerSec throttles segment traffic. Zero disables throttling.
	IOBytesPerSec int64
}

// Controller enforces Config. A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	mem  *semaphore.Weighted
	used atomic.Int64

	slots   *semaphore.Weighted
	traffic *rate.Limiter
}

// NewController builds a controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.IOFanout <= 0 {
		cfg.IOFanout = DefaultFanout
	}
	c := &Controller{cfg: cfg, slots: semaphore.NewWeighted(int64(cfg.IOFanout))}
	if cfg.MemoryBytes > 0 {
		c.mem = semaphore.NewWeighted(cfg.MemoryBytes)
	}
	if cfg.IOBytesPerSec > 0 {
		c.traffic = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSec), int(cfg.IOBytesPerSec))
	}
	return c
}

// ReserveMemory accounts n bytes of cached segment data. It never blocks
// and reports false when the cap would be exceeded.
func (c *Controller) ReserveMemory(n int64) bool {
	if c == nil || n <= 0 {
		return true
	}
	if c.mem != nil && !c.mem.TryAcquire(n) {
		return false
	}
	c.used.Add(n)
	return true
}

// ReleaseMemory returns bytes taken by ReserveMemory.
func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.mem != nil {
		c.mem.Release(n)
	}
	c.used.Add(-n)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.used.Load()
}

// MemoryLimit returns the cap, or 0 when uncapped.
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryBytes
}

// Fanout is the number of store calls a fan-out may keep in flight.
func (c *Controller) Fanout() int {
	if c == nil {
		return DefaultFanout
	}
	return c.cfg.IOFanout
}

// AcquireSlot waits for one of the Fanout slots.
func (c *Controller) AcquireSlot(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.slots.Acquire(ctx, 1)
}

// ReleaseSlot frees a slot taken by AcquireSlot.
func (c *Controller) ReleaseSlot() {
	if c == nil {
		return
	}
	c.slots.Release(1)
}

// WaitIO blocks until n bytes of segment traffic are admitted. Transfers
// larger than one second of traffic are admitted piecewise.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.traffic == nil {
		return nil
	}
	for burst := c.traffic.Burst(); n > 0; n -= burst {
		if err := c.traffic.WaitN(ctx, min(n, burst)); err != nil {
			return err
		}
	}
	return nil
}
