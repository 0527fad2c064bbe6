package service_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/service"
)

func validPayload() entity.ProcessDocumentPayload {
	return entity.ProcessDocumentPayload{JobID: uuid.NewString(), FileKey: "uploads/a.png", Language: "auto", OCREngine: "tesseract"}
}

func TestValidatePayload(t *testing.T) {
	if err := service.ValidatePayload(entity.TaskProcessDocument, []byte(`{"job_id":"not-a-uuid","file_key":"k"}`)); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad uuid, got %v", err)
	}
	if err := service.ValidatePayload(entity.TaskProcessDocument, []byte(`{"job_id":"`+uuid.NewString()+`"}`)); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing file_key, got %v", err)
	}
	if err := service.ValidatePayload("resize_image", []byte(`{}`)); !errors.Is(err, service.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestMemoryQueue_FIFOAndStatus(t *testing.T) {
	ctx := context.Background()
	q := service.NewMemoryQueue()

	if task, err := q.Dequeue(ctx); task != nil || err != nil {
		t.Fatalf("expected empty queue to return nil, nil; got %v %v", task, err)
	}

	first, err := q.Enqueue(ctx, entity.TaskProcessDocument, validPayload())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, _ := q.Enqueue(ctx, entity.TaskProcessDocument, validPayload())
	if q.Len() != 2 {
		t.Fatalf("expected 2 pending, got %d", q.Len())
	}

	task, err := q.Dequeue(ctx)
	if err != nil || task.ID != first || task.Status != entity.TaskProcessing {
		t.Fatalf("expected first task processing, got %+v %v", task, err)
	}

	if err := q.UpdateStatus(ctx, first, entity.TaskCompleted, map[string]any{"result": map[string]int{"pages": 1}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	st, _ := q.GetStatus(ctx, first)
	if st.Status != entity.TaskCompleted || string(st.Result) != `{"pages":1}` {
		t.Fatalf("unexpected status %+v", st)
	}

	_ = q.Ack(ctx, first)
	if _, err := q.GetStatus(ctx, first); !errors.Is(err, service.ErrTaskNotFound) {
		t.Fatalf("expected acked task discarded, got %v", err)
	}

	task, _ = q.Dequeue(ctx)
	if task.ID != second {
		t.Fatalf("expected FIFO order")
	}
}

func TestMemoryQueue_RejectsInvalidPayload(t *testing.T) {
	q := service.NewMemoryQueue()
	_, err := q.Enqueue(context.Background(), entity.TaskProcessDocument, map[string]string{"job_id": "x"})
	if !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected nothing queued")
	}
}

func TestRedisQueue_RequeueStale(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	prefix := "test:" + uuid.NewString()
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = rdb.Del(ctx, keys...).Err()
		}
	})
	q := service.NewRedisQueue(rdb, prefix, time.Nanosecond, time.Minute)

	id, err := q.Enqueue(ctx, entity.TaskProcessDocument, validPayload())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, err := q.Dequeue(ctx)
	if err != nil || task == nil || task.ID != id {
		t.Fatalf("expected task %s, got %+v %v", id, task, err)
	}
	if empty, _ := q.Dequeue(ctx); empty != nil {
		t.Fatalf("expected nothing left pending")
	}

	time.Sleep(1100 * time.Millisecond)
	n, err := q.RequeueStale(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 requeued, got %d %v", n, err)
	}
	again, _ := q.Dequeue(ctx)
	if again == nil || again.ID != id {
		t.Fatalf("expected redelivery of %s, got %+v", id, again)
	}
	if err := q.Ack(ctx, id); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n, _ := q.RequeueStale(ctx, 10); n != 0 {
		t.Fatalf("expected nothing to requeue after ack, got %d", n)
	}
}

func TestMemoryQueue_ActiveJobsUntilAck(t *testing.T) {
	ctx := context.Background()
	q := service.NewMemoryQueue()

	waiting, claimed := validPayload(), validPayload()
	if _, err := q.Enqueue(ctx, entity.TaskProcessDocument, claimed); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, entity.TaskProcessDocument, waiting); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := q.Dequeue(ctx)

	active, err := q.ActiveJobs(ctx)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for _, id := range []string{waiting.JobID, claimed.JobID} {
		if _, ok := active[id]; !ok {
			t.Fatalf("expected %s active, got %v", id, active)
		}
	}

	_ = q.Ack(ctx, task.ID)
	active, _ = q.ActiveJobs(ctx)
	if _, ok := active[claimed.JobID]; ok || len(active) != 1 {
		t.Fatalf("expected only the waiting job after ack, got %v", active)
	}
}

func TestRedisQueue_ActiveJobs(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	prefix := "test:" + uuid.NewString()
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = rdb.Del(ctx, keys...).Err()
		}
	})
	q := service.NewRedisQueue(rdb, prefix, time.Minute, time.Minute)

	claimed, waiting := validPayload(), validPayload()
	_, _ = q.Enqueue(ctx, entity.TaskProcessDocument, claimed)
	_, _ = q.Enqueue(ctx, entity.TaskProcessDocument, waiting)
	task, err := q.Dequeue(ctx)
	if err != nil || task == nil {
		t.Fatalf("expected a task, got %+v %v", task, err)
	}

	active, err := q.ActiveJobs(ctx)
	if err != nil || len(active) != 2 {
		t.Fatalf("expected 2 active jobs, got %v %v", active, err)
	}

	_ = q.Ack(ctx, task.ID)
	active, _ = q.ActiveJobs(ctx)
	if len(active) != 1 {
		t.Fatalf("expected 1 active job after ack, got %v", active)
	}
}
