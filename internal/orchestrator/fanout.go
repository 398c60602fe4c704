package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FanOut runs fn for every item with at most limit running at once and
// returns when all have finished.
//
// The returned slice is aligned with items and holds nil for items that
// succeeded. A failing or panicking item never cancels its siblings. A
// limit of zero or less means no limit.
func FanOut[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) error) []error {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = Protect(func() error { return fn(ctx, item) })
			return nil
		})
	}
	_ = g.Wait() // workers never return an error
	return errs
}
