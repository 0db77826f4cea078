package calendar

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetch loads the items of one source.
type Fetch func(ctx context.Context) ([]Item, error)

// Collect runs the fetches concurrently. A failing source is logged and contributes
// no items; it never hides the others.
func Collect(ctx context.Context, log *zap.Logger, fetches map[Source]Fetch) map[Source][]Item {
	type result struct {
		src   Source
		items []Item
	}
	results := make([]result, 0, len(fetches))
	for src := range fetches {
		results = append(results, result{src: src})
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range results {
		r := &results[i]
		fetch := fetches[r.src]
		g.Go(func() error {
			items, err := fetch(ctx)
			if err != nil {
				log.Warn("calendar source failed", zap.String("source", string(r.src)), zap.Error(err))
				return nil
			}
			r.items = items
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[Source][]Item, len(results))
	for _, r := range results {
		out[r.src] = r.items
	}
	return out
}
