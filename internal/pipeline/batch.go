package pipeline

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/claimcheck/internal/model"
)

// Loader opens the document behind a path.
type Loader func(ctx context.Context, path string) (*model.Document, error)

// BatchItem is the outcome for one path in a batch. Exactly one of Report
// and Err is set.
type BatchItem struct {
	Path   string  `json:"path"`
	Report *Report `json:"report,omitempty"`
	Err    string  `json:"error,omitempty"`
}

// RunBatch processes paths with at most concurrency documents in flight.
// A failing document does not stop the others. Items are returned in the
// order of paths.
func (r *Runner) RunBatch(ctx context.Context, paths []string, load Loader, claim *Claim, concurrency int) []BatchItem {
	if concurrency <= 0 {
		concurrency = 1
	}
	zap.L().Info("pipeline: processing batch",
		zap.Int("documents", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	items := make([]BatchItem, len(paths))
	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		items[i].Path = path
		g.Go(func() error {
			log := zap.L().With(zap.String("path", path))

			doc, err := load(gctx, path)
			if err != nil {
				failed.Add(1)
				items[i].Err = err.Error()
				log.Error("pipeline: open document failed", zap.Error(err))
				return nil
			}
			rep, err := r.Run(gctx, doc, claim)
			if err != nil {
				failed.Add(1)
				items[i].Err = err.Error()
				log.Error("pipeline: run failed", zap.Error(err))
				return nil
			}
			succeeded.Add(1)
			items[i].Report = rep
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("pipeline: batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return items
}
