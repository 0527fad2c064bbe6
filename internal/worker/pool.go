package worker

import (
	"context"
	"sync"
	"time"

	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/service"
)

type TaskProcessor interface {
	Process(ctx context.Context, task *entity.Task) (*Outcome, error)
}

type Pool struct {
	queue     service.Queue
	processor TaskProcessor
	workers   int
	log       *logger.Logger

	idleDelay  time.Duration
	errorDelay time.Duration
}

// NewPool runs workers consumer loops. The in-memory queue supports a single
// consumer, so it always gets one.
func NewPool(queue service.Queue, processor TaskProcessor, workers int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if _, ok := queue.(*service.MemoryQueue); ok {
		workers = 1
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		log:        log,
		idleDelay:  time.Second,
		errorDelay: 5 * time.Second,
	}
}

// WithDelays overrides the idle and error backoff.
func (p *Pool) WithDelays(idle, onError time.Duration) *Pool {
	p.idleDelay, p.errorDelay = idle, onError
	return p
}

// Run blocks until ctx is cancelled and every loop has finished its current
// task.
func (p *Pool) Run(ctx context.Context) {
	p.log.Info("worker pool started", "workers", p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.loop(ctx, p.log.With("worker", n))
		}(i + 1)
	}
	wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, log *logger.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "error", err)
			sleep(ctx, p.errorDelay)
			continue
		}
		if task == nil {
			sleep(ctx, p.idleDelay)
			continue
		}

		p.handle(ctx, log, task)
	}
}

func (p *Pool) handle(ctx context.Context, log *logger.Logger, task *entity.Task) {
	if task.Name != entity.TaskProcessDocument {
		log.Warn("unknown task, dropping", "task_id", task.ID, "name", task.Name)
		p.finish(ctx, log, task, entity.TaskFailed, map[string]any{"error": "unknown task " + string(task.Name)})
		return
	}

	out, err := p.processor.Process(ctx, task)
	if err != nil {
		// Cancelled mid-task: leave it claimed so it is redelivered.
		if ctx.Err() != nil {
			return
		}
		p.finish(ctx, log, task, entity.TaskFailed, map[string]any{"error": err.Error()})
		return
	}
	p.finish(ctx, log, task, entity.TaskCompleted, map[string]any{"result": out})
}

func (p *Pool) finish(ctx context.Context, log *logger.Logger, task *entity.Task, status entity.TaskStatus, patch map[string]any) {
	if err := p.queue.UpdateStatus(ctx, task.ID, status, patch); err != nil {
		log.Warn("task status update failed", "task_id", task.ID, "error", err)
	}
	if err := p.queue.Ack(ctx, task.ID); err != nil {
		log.Error("ack failed", "task_id", task.ID, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
