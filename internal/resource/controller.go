package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxQueryParallelism bounds the per-shard query fan-out.
const DefaultMaxQueryParallelism = 32

// Config holds the worker and IO limits of a run.
type Config struct {
	// Workers is the total number of worker goroutines.
	// If 0, defaults to the CPU affinity count.
	Workers int

	// ShardParallelism is how many shards are built and swept at once (outer fan-out).
	// If 0, defaults to 1. Clamped to Workers.
	ShardParallelism int

	// MaxQueryParallelism caps the per-shard query fan-out (inner fan-out).
	// If 0, defaults to DefaultMaxQueryParallelism.
	MaxQueryParallelism int

	// IOLimitBytesPerSec throttles artifact mirroring.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller enforces the worker and IO policy.
type Controller struct {
	cfg Config

	shardSem  *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.Workers <= 0 {
		cfg.Workers = AvailableCPUs()
	}
	if cfg.ShardParallelism <= 0 {
		cfg.ShardParallelism = 1
	}
	if cfg.ShardParallelism > cfg.Workers {
		cfg.ShardParallelism = cfg.Workers
	}
	if cfg.MaxQueryParallelism <= 0 {
		cfg.MaxQueryParallelism = DefaultMaxQueryParallelism
	}

	c := &Controller{
		cfg:      cfg,
		shardSem: semaphore.NewWeighted(int64(cfg.ShardParallelism)),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		burst := cfg.IOLimitBytesPerSec
		if burst > 1<<30 {
			burst = 1 << 30
		}
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(burst))
	}

	return c
}

// Workers returns the total worker budget.
func (c *Controller) Workers() int {
	if c == nil {
		return 1
	}
	return c.cfg.Workers
}

// ShardParallelism returns the outer fan-out width.
func (c *Controller) ShardParallelism() int {
	if c == nil {
		return 1
	}
	return c.cfg.ShardParallelism
}

// QueryParallelism returns the inner fan-out width available to one shard:
// min(MaxQueryParallelism, Workers/ShardParallelism), at least 1.
func (c *Controller) QueryParallelism() int {
	if c == nil {
		return 1
	}
	p := c.cfg.Workers / c.cfg.ShardParallelism
	if p > c.cfg.MaxQueryParallelism {
		p = c.cfg.MaxQueryParallelism
	}
	if p < 1 {
		p = 1
	}
	return p
}

// AcquireShard reserves an outer slot. Blocks while all slots are busy.
func (c *Controller) AcquireShard(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.shardSem.Acquire(ctx, 1)
}

// ReleaseShard releases an outer slot.
func (c *Controller) ReleaseShard() {
	if c == nil {
		return
	}
	c.shardSem.Release(1)
}

// IOLimited reports whether an IO rate limit is configured.
func (c *Controller) IOLimited() bool {
	return c != nil && c.ioLimiter != nil
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	for bytes > 0 {
		n := bytes
		if n > c.ioLimiter.Burst() {
			n = c.ioLimiter.Burst()
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
