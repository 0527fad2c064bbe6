package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"doc-intake-service/internal/entity"
)

// MemoryQueue is an in-process FIFO. Contents are lost on restart and it
// supports a single consumer only.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []string
	tasks   map[string]*entity.Task
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{tasks: make(map[string]*entity.Task)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, name entity.TaskName, payload any) (string, error) {
	raw, err := encodeTask(name, payload)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	t := &entity.Task{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   raw,
		Status:    entity.TaskQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[t.ID] = t
	q.pending = append(q.pending, t.ID)
	return t.ID, nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*entity.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		t, ok := q.tasks[id]
		if !ok {
			continue
		}
		_ = applyPatch(t, entity.TaskProcessing, nil)
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (q *MemoryQueue) GetStatus(_ context.Context, taskID string) (*entity.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	cp := *t
	return &cp, nil
}

func (q *MemoryQueue) UpdateStatus(_ context.Context, taskID string, status entity.TaskStatus, patch map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return applyPatch(t, status, patch)
}

// Ack discards the task.
func (q *MemoryQueue) Ack(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, taskID)
	return nil
}

// RequeueStale is a no-op: tasks held in memory die with the process.
func (q *MemoryQueue) RequeueStale(context.Context, int64) (int64, error) {
	return 0, nil
}

// ActiveJobs covers every task not yet acked.
func (q *MemoryQueue) ActiveJobs(context.Context) (map[string]struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := make(map[string]struct{}, len(q.tasks))
	for _, t := range q.tasks {
		if id := taskJobID(t); id != "" {
			active[id] = struct{}{}
		}
	}
	return active, nil
}

// Len reports the number of tasks waiting to be dequeued.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
