package resource

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelFor calls fn(i) for every i in [0, n) using at most limit goroutines.
// Indices are handed out in contiguous chunks of grain. It returns after every
// call has finished (the fan-in barrier) with the first error, if any.
//
// fn must only write to slots owned by i.
func ParallelFor(ctx context.Context, n, limit, grain int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if grain <= 0 {
		grain = 1
	}
	if limit <= 1 || n <= grain {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for lo := 0; lo < n; lo += grain {
		hi := min(lo+grain, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// ParallelFor runs fn over [0, n) with the controller's query parallelism.
func (c *Controller) ParallelFor(ctx context.Context, n, grain int, fn func(i int) error) error {
	return ParallelFor(ctx, n, c.QueryParallelism(), grain, fn)
}
