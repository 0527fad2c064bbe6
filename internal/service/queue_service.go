package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"doc-intake-service/internal/config"
	"doc-intake-service/internal/entity"
)

var ErrTaskNotFound = errors.New("task not found")

// Queue delivers tasks at least once. Dequeue returns (nil, nil) when empty.
type Queue interface {
	Enqueue(ctx context.Context, name entity.TaskName, payload any) (string, error)
	Dequeue(ctx context.Context) (*entity.Task, error)
	GetStatus(ctx context.Context, taskID string) (*entity.Task, error)
	UpdateStatus(ctx context.Context, taskID string, status entity.TaskStatus, patch map[string]any) error
	Ack(ctx context.Context, taskID string) error
	RequeueStale(ctx context.Context, max int64) (int64, error)
	// ActiveJobs returns the job ids of tasks that are pending or claimed.
	ActiveJobs(ctx context.Context) (map[string]struct{}, error)
}

// NewQueue picks the backend named by cfg.QueueType. rdb may be nil for memory.
func NewQueue(cfg *config.Config, rdb *redis.Client) (Queue, error) {
	switch cfg.QueueType {
	case "memory":
		return NewMemoryQueue(), nil
	case "redis":
		if rdb == nil {
			return nil, &config.Error{Key: "REDIS_ADDR", Reason: "redis client is required for QUEUE_TYPE=redis"}
		}
		return NewRedisQueue(rdb, cfg.RedisQueueKey, cfg.VisibilityTimeout, cfg.TaskTTL), nil
	default:
		return nil, &config.Error{Key: "QUEUE_TYPE", Reason: fmt.Sprintf("unknown queue type %q", cfg.QueueType)}
	}
}

// applyPatch copies known patch fields onto a task.
func applyPatch(t *entity.Task, status entity.TaskStatus, patch map[string]any) error {
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	if v, ok := patch["result"]; ok {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
		t.Result = b
	}
	if v, ok := patch["error"]; ok {
		t.Error = fmt.Sprint(v)
	}
	return nil
}

// taskJobID reads the job id out of a task payload.
func taskJobID(t *entity.Task) string {
	var p struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return ""
	}
	return p.JobID
}

// RedisQueue keeps task bodies under <prefix>:task:<id> and ids in two lists.
// Dequeue: RPOPLPUSH pending -> processing, claim time stored in <prefix>:claims.
// Ack:     LREM from processing and drop the claim.
// RequeueStale returns claims older than the visibility timeout to pending.
type RedisQueue struct {
	rdb        *redis.Client
	prefix     string
	visibility time.Duration
	ttl        time.Duration
}

func NewRedisQueue(rdb *redis.Client, prefix string, visibility, ttl time.Duration) *RedisQueue {
	if visibility <= 0 {
		visibility = 10 * time.Minute
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisQueue{rdb: rdb, prefix: prefix, visibility: visibility, ttl: ttl}
}

func (q *RedisQueue) taskKey(id string) string { return q.prefix + ":task:" + id }
func (q *RedisQueue) pendingKey() string       { return q.prefix + ":pending" }
func (q *RedisQueue) processingKey() string    { return q.prefix + ":processing" }
func (q *RedisQueue) claimsKey() string        { return q.prefix + ":claims" }

func (q *RedisQueue) Enqueue(ctx context.Context, name entity.TaskName, payload any) (string, error) {
	raw, err := encodeTask(name, payload)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	task := entity.Task{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   raw,
		Status:    entity.TaskQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	body, err := json.Marshal(task)
	if err != nil {
		return "", err
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, q.taskKey(task.ID), body, q.ttl)
		p.LPush(ctx, q.pendingKey(), task.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	return task.ID, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*entity.Task, error) {
	id, err := q.rdb.RPopLPush(ctx, q.pendingKey(), q.processingKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := q.rdb.HSet(ctx, q.claimsKey(), id, time.Now().Unix()).Err(); err != nil {
		// without a claim the reaper cannot redeliver it; put it back
		_ = q.rdb.LRem(ctx, q.processingKey(), 1, id).Err()
		_ = q.rdb.RPush(ctx, q.pendingKey(), id).Err()
		return nil, err
	}

	task, err := q.GetStatus(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		// body expired; nothing to deliver
		_ = q.Ack(ctx, id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := applyPatch(task, entity.TaskProcessing, nil); err != nil {
		return nil, err
	}
	if err := q.save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (q *RedisQueue) GetStatus(ctx context.Context, taskID string) (*entity.Task, error) {
	body, err := q.rdb.Get(ctx, q.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, err
	}
	var t entity.Task
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &t, nil
}

func (q *RedisQueue) UpdateStatus(ctx context.Context, taskID string, status entity.TaskStatus, patch map[string]any) error {
	t, err := q.GetStatus(ctx, taskID)
	if err != nil {
		return err
	}
	if err := applyPatch(t, status, patch); err != nil {
		return err
	}
	return q.save(ctx, t)
}

func (q *RedisQueue) save(ctx context.Context, t *entity.Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, q.taskKey(t.ID), body, redis.KeepTTL).Err()
}

func (q *RedisQueue) Ack(ctx context.Context, taskID string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processingKey(), 1, taskID)
		p.HDel(ctx, q.claimsKey(), taskID)
		return nil
	})
	return err
}

func (q *RedisQueue) RequeueStale(ctx context.Context, max int64) (int64, error) {
	claims, err := q.rdb.HGetAll(ctx, q.claimsKey()).Result()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-q.visibility).Unix()

	var moved int64
	for id, ts := range claims {
		if max > 0 && moved >= max {
			break
		}
		claimedAt, err := strconv.ParseInt(ts, 10, 64)
		if err == nil && claimedAt > cutoff {
			continue
		}
		removed, err := q.rdb.LRem(ctx, q.processingKey(), 1, id).Result()
		if err != nil {
			return moved, err
		}
		if removed > 0 {
			// RPUSH puts it at the dequeue end
			if err := q.rdb.RPush(ctx, q.pendingKey(), id).Err(); err != nil {
				return moved, err
			}
			moved++
		}
		_ = q.rdb.HDel(ctx, q.claimsKey(), id).Err()
	}
	return moved, nil
}

func (q *RedisQueue) ActiveJobs(ctx context.Context) (map[string]struct{}, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LRange(ctx, q.pendingKey(), 0, -1)
	processing := pipe.LRange(ctx, q.processingKey(), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	ids := append(pending.Val(), processing.Val()...)
	active := make(map[string]struct{}, len(ids))
	const batch = 200
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, q.taskKey(id))
		}
		bodies, err := q.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		for _, b := range bodies {
			s, ok := b.(string)
			if !ok {
				continue
			}
			var t entity.Task
			if err := json.Unmarshal([]byte(s), &t); err != nil {
				continue
			}
			if id := taskJobID(&t); id != "" {
				active[id] = struct{}{}
			}
		}
	}
	return active, nil
}
