package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"doc-intake-service/internal/audit"
	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/repository/postgresql"
	"doc-intake-service/internal/storage"
)

type Task string

const (
	TaskJobs     Task = "jobs"
	TaskAudit    Task = "audit"
	TaskOrphaned Task = "orphaned"
	TaskAll      Task = "all"
)

var ErrUnknownTask = errors.New("unknown cleanup task")

func ParseTask(s string) (Task, error) {
	switch t := Task(s); t {
	case TaskJobs, TaskAudit, TaskOrphaned, TaskAll:
		return t, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownTask, s)
}

const maxReportedFailures = 10

type JobStore interface {
	ListAll(ctx context.Context, fn func(entity.Job) error) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListFileKeys(ctx context.Context) (map[string]struct{}, error)
}

type AuditStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditRecorder interface {
	LogAction(ctx context.Context, a audit.Action) *entity.AuditLog
}

// Index is a secondary index keyed by job id (full-text, vector).
type Index interface {
	Delete(ctx context.Context, jobID string) error
}

type Store interface {
	storage.Storage
	storage.Lister
}

// Report summarises one cleanup pass.
type Report struct {
	Deleted    int      `json:"deleted"`
	Failed     int      `json:"failed"`
	FailedKeys []string `json:"failed_keys,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

func (r *Report) fail(key string, err error) {
	r.Failed++
	if len(r.FailedKeys) < maxReportedFailures {
		r.FailedKeys = append(r.FailedKeys, key)
		r.Errors = append(r.Errors, err.Error())
	}
}

type RunSummary struct {
	Task    Task   `json:"task"`
	Success bool   `json:"success"`
	Deleted int64  `json:"deleted"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

type Engine struct {
	jobs    JobStore
	audits  AuditStore
	store   Store
	rec     AuditRecorder
	indexes []Index
	policy  Policy
	log     *logger.Logger
	now     func() time.Time
}

func NewEngine(jobs JobStore, audits AuditStore, store Store, rec AuditRecorder, policy Policy, log *logger.Logger, indexes ...Index) *Engine {
	return &Engine{
		jobs:    jobs,
		audits:  audits,
		store:   store,
		rec:     rec,
		indexes: indexes,
		policy:  policy,
		log:     log.With("component", "retention"),
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// CleanupExpiredJobs removes jobs past their purpose retention. The stored
// file goes first; if that fails the row is kept so the file is not lost track of.
func (e *Engine) CleanupExpiredJobs(ctx context.Context) (Report, error) {
	start := e.now()
	var rep Report

	err := e.jobs.ListAll(ctx, func(j entity.Job) error {
		if !e.policy.Expired(j.CreatedAt, start, j.Purpose()) {
			return nil
		}
		if err := e.deleteJob(ctx, j); err != nil {
			e.log.Warn("expired job not removed", "job_id", j.ID, "file_key", j.FileKey, "error", err)
			rep.fail(j.FileKey, err)
			return nil
		}
		rep.Deleted++
		return nil
	})

	status := entity.AuditSuccess
	errMsg := ""
	if rep.Failed > 0 {
		status = entity.AuditWarning
	}
	if err != nil {
		status = entity.AuditFailed
		errMsg = err.Error()
	}
	e.rec.LogAction(ctx, audit.Action{
		Type:         entity.ActionCleanupExpired,
		ResourceType: "system",
		ActorIP:      "system",
		Status:       status,
		ErrorMessage: errMsg,
		Details: map[string]any{
			"deleted_count": rep.Deleted,
			"failed_count":  rep.Failed,
			"failed_files":  rep.FailedKeys,
			"errors":        rep.Errors,
		},
	})
	e.log.Info("expired job cleanup finished",
		"deleted", rep.Deleted, "failed", rep.Failed, "duration_ms", time.Since(start).Milliseconds())

	if err != nil {
		return rep, fmt.Errorf("cleanup expired jobs: %w", err)
	}
	return rep, nil
}

func (e *Engine) deleteJob(ctx context.Context, j entity.Job) error {
	if j.FileKey != "" {
		if _, err := e.store.Delete(ctx, j.FileKey); err != nil {
			return fmt.Errorf("delete file: %w", err)
		}
	}
	if err := e.jobs.Delete(ctx, j.ID); err != nil && !errors.Is(err, postgresql.ErrNotFound) {
		return fmt.Errorf("delete row: %w", err)
	}
	for _, idx := range e.indexes {
		if err := idx.Delete(ctx, j.ID.String()); err != nil {
			e.log.Warn("index entry not removed", "job_id", j.ID, "error", err)
		}
	}
	return nil
}

// CleanupAuditLogs deletes audit entries older than the mandatory retention in one statement.
func (e *Engine) CleanupAuditLogs(ctx context.Context) (int64, error) {
	cutoff := e.policy.AuditCutoff(e.now())
	n, err := e.audits.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		e.log.Error("audit log cleanup failed", "error", err)
		e.rec.LogAction(ctx, audit.Action{
			Type: entity.ActionCleanupAudit, ResourceType: "system", ActorIP: "system",
			Status: entity.AuditFailed, ErrorMessage: err.Error(),
		})
		return 0, fmt.Errorf("cleanup audit logs: %w", err)
	}
	e.rec.LogAction(ctx, audit.Action{
		Type: entity.ActionCleanupAudit, ResourceType: "system", ActorIP: "system",
		Details: map[string]any{"deleted_count": n, "cutoff": cutoff.UTC().Format(time.RFC3339)},
	})
	e.log.Info("audit log cleanup finished", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// CleanupOrphanedFiles deletes stored objects no job references, once they
// are older than the grace period.
func (e *Engine) CleanupOrphanedFiles(ctx context.Context) (Report, error) {
	var rep Report
	now := e.now()

	objs, err := e.store.List(ctx, "")
	if err != nil {
		return rep, fmt.Errorf("list storage: %w", err)
	}
	keys, err := e.jobs.ListFileKeys(ctx)
	if err != nil {
		return rep, fmt.Errorf("list file keys: %w", err)
	}

	grace := e.policy.OrphanGrace()
	for _, o := range objs {
		if now.Sub(o.ModTime) < grace {
			continue
		}
		if _, ok := keys[o.Key]; ok {
			continue
		}
		deleted, err := e.store.Delete(ctx, o.Key)
		if err != nil {
			e.log.Warn("orphan not removed", "file_key", o.Key, "error", err)
			rep.fail(o.Key, err)
			continue
		}
		if deleted {
			rep.Deleted++
		}
	}

	status := entity.AuditSuccess
	if rep.Failed > 0 {
		status = entity.AuditWarning
	}
	e.rec.LogAction(ctx, audit.Action{
		Type: entity.ActionCleanupOrphans, ResourceType: "system", ActorIP: "system", Status: status,
		Details: map[string]any{"deleted_count": rep.Deleted, "failed_count": rep.Failed, "failed_files": rep.FailedKeys},
	})
	e.log.Info("orphaned file cleanup finished", "scanned", len(objs), "deleted", rep.Deleted, "failed", rep.Failed)
	return rep, nil
}

// Run executes one task, or every task for TaskAll. Tasks are isolated:
// a failure in one does not stop the others.
func (e *Engine) Run(ctx context.Context, task Task) []RunSummary {
	tasks := []Task{task}
	if task == TaskAll {
		tasks = []Task{TaskJobs, TaskAudit, TaskOrphaned}
	}
	out := make([]RunSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, e.runOne(ctx, t))
	}
	return out
}

func (e *Engine) runOne(ctx context.Context, t Task) (sum RunSummary) {
	sum.Task = t
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("cleanup task panicked", "task", t, "panic", r)
			sum.Success = false
			sum.Error = fmt.Sprint(r)
		}
	}()

	var err error
	switch t {
	case TaskJobs:
		var rep Report
		rep, err = e.CleanupExpiredJobs(ctx)
		sum.Deleted, sum.Failed = int64(rep.Deleted), rep.Failed
	case TaskAudit:
		sum.Deleted, err = e.CleanupAuditLogs(ctx)
	case TaskOrphaned:
		var rep Report
		rep, err = e.CleanupOrphanedFiles(ctx)
		sum.Deleted, sum.Failed = int64(rep.Deleted), rep.Failed
	default:
		err = fmt.Errorf("%w %q", ErrUnknownTask, t)
	}
	sum.Success = err == nil
	if err != nil {
		sum.Error = err.Error()
	}
	return sum
}

// AllSucceeded reports whether every summary succeeded.
func AllSucceeded(sums []RunSummary) bool {
	for _, s := range sums {
		if !s.Success {
			return false
		}
	}
	return true
}
