package worker

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"doc-intake-service/internal/logger"
)

// Runner is the consumer side of the pipeline: a Pool draining the queue and
// a Reaper sweeping for abandoned work, stopped together.
type Runner struct {
	pool   *Pool
	reaper *Reaper
	closer io.Closer
	log    *logger.Logger
}

// NewRunner wires pool and reaper. closer, when non-nil, is released by Close.
func NewRunner(pool *Pool, reaper *Reaper, closer io.Closer, log *logger.Logger) *Runner {
	return &Runner{pool: pool, reaper: reaper, closer: closer, log: log}
}

// Run blocks until ctx is cancelled and the pool has finished in-flight tasks.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.reaper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		r.pool.Run(ctx)
		return nil
	})
	err := g.Wait()
	r.log.Info("worker runner stopped")
	return err
}

func (r *Runner) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
