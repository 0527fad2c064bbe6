package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/repository/postgresql"
	"doc-intake-service/internal/service"
)

type StaleJobRepo interface {
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]entity.Job, error)
	Requeue(ctx context.Context, id uuid.UUID) error
}

// Reaper returns abandoned work to the queue: claimed tasks past the
// visibility timeout, and jobs left queued or processing with no update for
// longer than staleAfter that have no pending or claimed task (for example
// when enqueue was lost or the queue did not survive a restart).
type Reaper struct {
	queue      service.Queue
	repo       StaleJobRepo
	staleAfter time.Duration
	interval   time.Duration
	log        *logger.Logger
	now        func() time.Time
}

func NewReaper(queue service.Queue, repo StaleJobRepo, staleAfter time.Duration, log *logger.Logger) *Reaper {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Reaper{
		queue:      queue,
		repo:       repo,
		staleAfter: staleAfter,
		interval:   30 * time.Second,
		log:        log,
		now:        time.Now,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one pass and returns how many tasks and jobs it requeued.
func (r *Reaper) Sweep(ctx context.Context) (tasks int64, jobs int) {
	n, err := r.queue.RequeueStale(ctx, 100)
	if err != nil {
		r.log.Error("requeue stale tasks failed", "error", err)
	} else if n > 0 {
		r.log.Info("requeued stale tasks", "count", n)
	}
	tasks = n

	stale, err := r.repo.ListStale(ctx, r.now().Add(-r.staleAfter), 100)
	if err != nil {
		r.log.Error("list stale jobs failed", "error", err)
		return tasks, 0
	}
	if len(stale) == 0 {
		return tasks, 0
	}
	active, err := r.queue.ActiveJobs(ctx)
	if err != nil {
		r.log.Error("list active jobs failed", "error", err)
		return tasks, 0
	}
	for _, j := range stale {
		if _, ok := active[j.ID.String()]; ok {
			continue
		}
		if err := r.repo.Requeue(ctx, j.ID); err != nil {
			if !errors.Is(err, postgresql.ErrTerminal) && !errors.Is(err, postgresql.ErrNotFound) {
				r.log.Warn("requeue job failed", "job_id", j.ID.String(), "error", err)
			}
			continue
		}
		payload := entity.ProcessDocumentPayload{
			JobID:     j.ID.String(),
			FileKey:   j.FileKey,
			Language:  j.Language,
			OCREngine: j.OCREngine,
		}
		if _, err := r.queue.Enqueue(ctx, entity.TaskProcessDocument, payload); err != nil {
			r.log.Error("re-enqueue job failed", "job_id", j.ID.String(), "error", err)
			continue
		}
		r.log.Info("stale job re-enqueued", "job_id", j.ID.String(), "retry_count", j.RetryCount+1)
		jobs++
	}
	return tasks, jobs
}
