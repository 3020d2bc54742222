// Package parallel runs indexed tasks with bounded concurrency.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/klauern/mirrorsync/internal/progress"
)

// Map calls fn for every index in [0, n) with at most limit calls in flight,
// and returns the results in index order regardless of completion order.
//
// The sink's length is set to n and it is incremented once per successful
// call. The first error cancels the context handed to the remaining calls,
// stops scheduling new ones, and is returned. The sink is finished either way.
func Map[T any](ctx context.Context, n, limit int, sink progress.Sink, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	sink = progress.OrNop(sink)
	sink.SetLength(uint64(n))
	defer sink.Finish()

	if limit < 1 {
		limit = 1
	}

	results := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := fn(gctx, i)
			if err != nil {
				return err
			}
			results[i] = v
			sink.Inc(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// The parent may have been cancelled before any task observed it.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
