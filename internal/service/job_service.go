package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"doc-intake-service/internal/audit"
	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/governance"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/repository/postgresql"
	"doc-intake-service/internal/retention"
	"doc-intake-service/internal/security"
	"doc-intake-service/internal/storage"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotReady        = errors.New("results not ready")
	ErrJobFailed       = errors.New("job failed")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// JobRepository is the record store port (implementation: postgresql.JobRepository).
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	List(ctx context.Context, f postgresql.JobFilter) ([]entity.Job, error)
	Count(ctx context.Context, f postgresql.JobFilter) (int, error)
	Results(ctx context.Context, jobID uuid.UUID) ([]entity.OCRResult, error)
	SetReview(ctx context.Context, id uuid.UUID, status entity.ReviewStatus) error
	Fail(ctx context.Context, id uuid.UUID, msg string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// JobQueue is the producer side of Queue.
type JobQueue interface {
	Enqueue(ctx context.Context, name entity.TaskName, payload any) (string, error)
}

type AuditRecorder interface {
	LogAction(ctx context.Context, a audit.Action) *entity.AuditLog
}

type JobService struct {
	repo    JobRepository
	queue   JobQueue
	store   storage.Storage
	audit   AuditRecorder
	policy  retention.Policy
	indexes []retention.Index
	maxSize int64
	log     *logger.Logger
	now     func() time.Time
}

type JobServiceDeps struct {
	Repo        JobRepository
	Queue       JobQueue
	Storage     storage.Storage
	Audit       AuditRecorder
	Policy      retention.Policy
	Indexes     []retention.Index
	MaxFileSize int64
	Log         *logger.Logger
}

func NewJobService(d JobServiceDeps) *JobService {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &JobService{
		repo:    d.Repo,
		queue:   d.Queue,
		store:   d.Storage,
		audit:   d.Audit,
		policy:  d.Policy,
		indexes: d.Indexes,
		maxSize: d.MaxFileSize,
		log:     log.With("component", "job_service"),
		now:     time.Now,
	}
}

type UploadRequest struct {
	Filename        string
	ContentType     string
	Data            []byte
	Language        string
	OCREngine       string
	PurposeCode     string
	DataPrincipalID string
	ConsentVerified bool
	ActorIP         string
}

func (s *JobService) Upload(ctx context.Context, req UploadRequest) (*entity.Job, error) {
	filename := security.SanitizeInput(filepath.Base(strings.ReplaceAll(req.Filename, "\\", "/")), 255)
	if filename == "" || filename == "." || filename == "/" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	if s.maxSize > 0 && int64(len(req.Data)) > s.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(req.Data), s.maxSize)
	}
	fileType, ext, err := detectFileType(filename, req.ContentType, req.Data)
	if err != nil {
		return nil, err
	}

	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = entity.DefaultLanguage
	}
	engine := strings.ToLower(strings.TrimSpace(req.OCREngine))
	if engine == "" {
		engine = entity.DefaultOCREngine
	}
	if engine != "tesseract" && engine != "vision" {
		return nil, fmt.Errorf("%w: unknown ocr engine %q", ErrInvalidInput, req.OCREngine)
	}

	now := s.now().UTC()
	id := uuid.New()
	key := fmt.Sprintf("uploads/%04d/%02d/%s%s", now.Year(), int(now.Month()), id, ext)
	purpose := optionalString(security.SanitizeInput(req.PurposeCode, 100))
	expires := s.policy.ExpiresAt(now, deref(purpose))

	if _, err := s.store.Upload(ctx, key, req.Data, fileType); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	job := &entity.Job{
		ID:                  id,
		Filename:            filename,
		FileSize:            int64(len(req.Data)),
		FileKey:             key,
		FileType:            fileType,
		Language:            language,
		OCREngine:           engine,
		Status:              entity.StatusQueued,
		Progress:            entity.ProgressQueued,
		ReviewStatus:        entity.ReviewPending,
		PurposeCode:         purpose,
		DataPrincipalID:     optionalString(security.SanitizeInput(req.DataPrincipalID, 255)),
		ConsentVerified:     req.ConsentVerified,
		DataRetentionPolicy: &expires,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		if _, derr := s.store.Delete(ctx, key); derr != nil {
			s.log.Warn("uploaded file left behind", "file_key", key, "error", derr)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	payload := entity.ProcessDocumentPayload{JobID: id.String(), FileKey: key, Language: language, OCREngine: engine}
	if _, err := s.queue.Enqueue(ctx, entity.TaskProcessDocument, payload); err != nil {
		msg := "enqueue failed: " + err.Error()
		if ferr := s.repo.Fail(ctx, id, msg); ferr != nil {
			s.log.Error("could not mark job failed", "job_id", id, "error", ferr)
		}
		s.audit.LogAction(ctx, audit.Action{
			Type: entity.ActionUpload, ResourceType: "job", ResourceID: id.String(), ActorIP: req.ActorIP,
			Status: entity.AuditFailed, ErrorMessage: msg,
			Details: map[string]any{"filename": filename, "file_size": job.FileSize},
		})
		return nil, fmt.Errorf("enqueue job %s: %w", id, err)
	}

	s.audit.LogAction(ctx, audit.Action{
		Type: entity.ActionUpload, ResourceType: "job", ResourceID: id.String(), ActorIP: req.ActorIP,
		UserID: deref(job.DataPrincipalID),
		Details: map[string]any{
			"filename":         filename,
			"file_size":        job.FileSize,
			"file_type":        fileType,
			"language":         language,
			"ocr_engine":       engine,
			"purpose":          deref(purpose),
			"consent_verified": req.ConsentVerified,
		},
	})
	s.log.Info("job created", "job_id", id, "file_key", key, "size", job.FileSize)
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *JobService) ListJobs(ctx context.Context, f postgresql.JobFilter) ([]entity.Job, int, error) {
	if f.Status != "" {
		switch f.Status {
		case entity.StatusQueued, entity.StatusProcessing, entity.StatusCompleted, entity.StatusFailed, entity.StatusOCRComplete:
		default:
			return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
		}
	}
	if f.ReviewStatus != "" && !f.ReviewStatus.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown review status %q", ErrInvalidInput, f.ReviewStatus)
	}
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	jobs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (s *JobService) ListNeedsReview(ctx context.Context, limit, offset int) ([]entity.Job, int, error) {
	return s.ListJobs(ctx, postgresql.JobFilter{ReviewStatus: entity.ReviewNeedsReview, Limit: limit, Offset: offset})
}

type JobResults struct {
	Job      *entity.Job        `json:"job"`
	FullText string             `json:"full_text"`
	Pages    []entity.OCRResult `json:"pages"`
}

// GetResults serves results of a completed job and records the access.
func (s *JobService) GetResults(ctx context.Context, id uuid.UUID, actorIP string) (*JobResults, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.ResultsAvailable() {
		if job.Status == entity.StatusFailed {
			return nil, fmt.Errorf("%w: %s", ErrJobFailed, deref(job.ErrorMessage))
		}
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, job.Status)
	}

	pages, err := s.repo.Results(ctx, id)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.FullText
	}

	s.audit.LogAction(ctx, audit.Action{
		Type: entity.ActionViewResults, ResourceType: "job", ResourceID: id.String(), ActorIP: actorIP,
		Details: map[string]any{"pages": len(pages)},
	})
	return &JobResults{Job: job, FullText: strings.Join(texts, entity.PageBreak), Pages: pages}, nil
}

type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// Review records a human disposition. Only review_status changes.
func (s *JobService) Review(ctx context.Context, id uuid.UUID, decision ReviewDecision, notes, actorIP string) (*entity.Job, error) {
	var status entity.ReviewStatus
	switch decision {
	case DecisionApprove:
		status = entity.ReviewApproved
	case DecisionReject:
		status = entity.ReviewRejected
	default:
		return nil, fmt.Errorf("%w: decision must be approve or reject", ErrInvalidInput)
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.ResultsAvailable() {
		return nil, fmt.Errorf("%w: only completed jobs can be reviewed", ErrNotReady)
	}
	previous := job.ReviewStatus
	if err := s.repo.SetReview(ctx, id, status); err != nil {
		return nil, err
	}
	job.ReviewStatus = status

	s.audit.LogAction(ctx, audit.Action{
		Type: entity.ActionManualReview, ResourceType: "job", ResourceID: id.String(), ActorIP: actorIP,
		Details: map[string]any{"decision": string(decision), "previous": string(previous), "notes": notes},
	})
	return job, nil
}

// DeleteJob removes the stored file, then the row, then index entries.
func (s *JobService) DeleteJob(ctx context.Context, id uuid.UUID, actorIP string) error {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, job.FileKey); err != nil {
		s.audit.LogAction(ctx, audit.Action{
			Type: entity.ActionDeleteJob, ResourceType: "job", ResourceID: id.String(), ActorIP: actorIP,
			Status: entity.AuditFailed, ErrorMessage: err.Error(),
		})
		return fmt.Errorf("delete file: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	for _, idx := range s.indexes {
		if err := idx.Delete(ctx, id.String()); err != nil {
			s.log.Warn("index entry not removed", "job_id", id, "error", err)
		}
	}
	s.audit.LogAction(ctx, audit.Action{
		Type: entity.ActionDeleteJob, ResourceType: "job", ResourceID: id.String(), ActorIP: actorIP,
		Details: map[string]any{"file_key": job.FileKey},
	})
	return nil
}

func (s *JobService) Transparency(ctx context.Context, id uuid.UUID) (*governance.TransparencyReport, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r := governance.BuildTransparencyReport(job)
	return &r, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return 50
	case n > 200:
		return 200
	}
	return n
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
