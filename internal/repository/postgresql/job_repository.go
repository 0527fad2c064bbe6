package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"doc-intake-service/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrTerminal is returned when a worker mutation targets a completed or failed job.
	ErrTerminal = errors.New("job is in a terminal state")
	ErrConflict = errors.New("job state conflict")
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

type JobFilter struct {
	Status       entity.JobStatus
	ReviewStatus entity.ReviewStatus
	Limit        int
	Offset       int
}

// CompleteParams carries the outcome of a successful extraction.
type CompleteParams struct {
	Results          []entity.OCRResult
	TotalPages       int
	Confidence       float64
	DetectedLanguage string
}

const listAllPageSize = 500

const jobColumns = `id, filename, file_size, file_key, file_type, language, ocr_engine,
status, progress, current_step, review_status, total_pages, processed_pages,
confidence_score, detected_language, error_message, retry_count,
contains_pii, pii_types, guardrail_flags, data_principal_id, purpose_code,
consent_verified, data_retention_policy, created_at, started_at, completed_at, updated_at`

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job        entity.Job
		statusText string
		reviewText string
		guardrails []byte
		piiTypes   []string
	)
	err := row.Scan(
		&job.ID, &job.Filename, &job.FileSize, &job.FileKey, &job.FileType, &job.Language, &job.OCREngine,
		&statusText, &job.Progress, &job.CurrentStep, &reviewText, &job.TotalPages, &job.ProcessedPages,
		&job.ConfidenceScore, &job.DetectedLanguage, &job.ErrorMessage, &job.RetryCount,
		&job.ContainsPII, &piiTypes, &guardrails, &job.DataPrincipalID, &job.PurposeCode,
		&job.ConsentVerified, &job.DataRetentionPolicy, &job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.Status = entity.JobStatus(statusText)
	job.ReviewStatus = entity.ReviewStatus(reviewText)
	job.PIITypes = piiTypes
	if guardrails != nil {
		job.GuardrailFlags = json.RawMessage(guardrails)
	}
	return &job, nil
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.PIITypes == nil {
		job.PIITypes = []string{}
	}

	const q = `
INSERT INTO jobs (id, filename, file_size, file_key, file_type, language, ocr_engine,
                  status, progress, review_status, data_principal_id, purpose_code,
                  consent_verified, data_retention_policy, pii_types)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING created_at, updated_at;
`
	return r.pool.QueryRow(ctx, q,
		job.ID, job.Filename, job.FileSize, job.FileKey, job.FileType, job.Language, job.OCREngine,
		string(job.Status), job.Progress, string(job.ReviewStatus), job.DataPrincipalID, job.PurposeCode,
		job.ConsentVerified, job.DataRetentionPolicy, job.PIITypes,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	return scanJob(r.pool.QueryRow(ctx, q, id))
}

func filterClause(f JobFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.ReviewStatus != "" {
		args = append(args, string(f.ReviewStatus))
		conds = append(conds, fmt.Sprintf("review_status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *JobRepository) List(ctx context.Context, f JobFilter) ([]entity.Job, error) {
	where, args := filterClause(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM jobs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d;`,
		jobColumns, where, len(args)-1, len(args))
	return r.queryJobs(ctx, q, args...)
}

func (r *JobRepository) Count(ctx context.Context, f JobFilter) (int, error) {
	where, args := filterClause(f)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM jobs`+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *JobRepository) queryJobs(ctx context.Context, q string, args ...any) ([]entity.Job, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// MarkProcessing starts a processing attempt. started_at is only set once.
func (r *JobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE jobs
SET status = 'processing', progress = $2, current_step = 'started', error_message = NULL,
    started_at = COALESCE(started_at, now()), updated_at = now()
WHERE id = $1 AND status IN ('queued', 'processing');
`
	tag, err := r.pool.Exec(ctx, q, id, entity.ProgressStarted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrTerminal(ctx, id)
	}
	return nil
}

// UpdateProgress never lowers progress and only applies while processing.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	const q = `
UPDATE jobs
SET progress = GREATEST(progress, $2), current_step = $3, updated_at = now()
WHERE id = $1 AND status = 'processing';
`
	tag, err := r.pool.Exec(ctx, q, id, progress, step)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrTerminal(ctx, id)
	}
	return nil
}

func (r *JobRepository) SetGovernance(ctx context.Context, id uuid.UUID, flags json.RawMessage, containsPII bool, piiTypes []string) error {
	if piiTypes == nil {
		piiTypes = []string{}
	}
	const q = `
UPDATE jobs
SET guardrail_flags = $2, contains_pii = $3, pii_types = $4,
    progress = GREATEST(progress, $5), current_step = 'governance', updated_at = now()
WHERE id = $1 AND status = 'processing';
`
	tag, err := r.pool.Exec(ctx, q, id, flags, containsPII, piiTypes, entity.ProgressGoverned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrTerminal(ctx, id)
	}
	return nil
}

// Complete upserts the page results and marks the job completed in one
// transaction. It returns the review status the gate assigned.
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, p CompleteParams) (entity.ReviewStatus, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var statusText string
	if err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE;`, id).Scan(&statusText); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if entity.JobStatus(statusText).IsTerminal() {
		return "", ErrTerminal
	}

	const upsert = `
INSERT INTO ocr_results (id, job_id, page_number, full_text, confidence, language,
                         word_count, char_count, processing_time, raw_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (job_id, page_number) DO UPDATE
SET full_text = EXCLUDED.full_text, confidence = EXCLUDED.confidence, language = EXCLUDED.language,
    word_count = EXCLUDED.word_count, char_count = EXCLUDED.char_count,
    processing_time = EXCLUDED.processing_time, raw_data = EXCLUDED.raw_data;
`
	batch := &pgx.Batch{}
	for _, res := range p.Results {
		if res.ID == uuid.Nil {
			res.ID = uuid.New()
		}
		batch.Queue(upsert, res.ID, id, res.PageNumber, res.FullText, res.Confidence, res.Language,
			res.WordCount, res.CharCount, res.ProcessingTime, []byte(res.RawData))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return "", fmt.Errorf("upsert ocr results: %w", err)
		}
	}

	review := entity.ReviewStatusFor(p.Confidence)
	const done = `
UPDATE jobs
SET status = 'completed', progress = $2, current_step = 'completed',
    total_pages = $3, processed_pages = $4, confidence_score = $5, detected_language = $6,
    review_status = CASE WHEN review_status IN ('pending', 'needs_review') THEN $7 ELSE review_status END,
    completed_at = COALESCE(completed_at, now()), updated_at = now()
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, done, id, entity.ProgressPersisted, p.TotalPages, len(p.Results),
		p.Confidence, p.DetectedLanguage, string(review)); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return review, nil
}

// Fail moves a non-terminal job to failed.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, msg string) error {
	const q = `
UPDATE jobs
SET status = 'failed', error_message = $2, current_step = 'failed',
    completed_at = COALESCE(completed_at, now()), updated_at = now()
WHERE id = $1 AND status IN ('queued', 'processing');
`
	tag, err := r.pool.Exec(ctx, q, id, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrTerminal(ctx, id)
	}
	return nil
}

func (r *JobRepository) SetReview(ctx context.Context, id uuid.UUID, status entity.ReviewStatus) error {
	const q = `UPDATE jobs SET review_status = $2, updated_at = now() WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue returns a stalled job to queued and counts the attempt.
func (r *JobRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE jobs
SET status = 'queued', progress = 0, current_step = NULL, retry_count = retry_count + 1, updated_at = now()
WHERE id = $1 AND status IN ('queued', 'processing');
`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrTerminal(ctx, id)
	}
	return nil
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAll walks every job in (created_at, id) order, one page at a time, and
// calls fn for each. Only id, file_key, purpose_code and created_at are
// loaded. A page is read fully before fn runs, so fn may write to the table.
func (r *JobRepository) ListAll(ctx context.Context, fn func(entity.Job) error) error {
	const q = `
SELECT id, file_key, purpose_code, created_at
FROM jobs
WHERE (created_at, id) > ($1, $2)
ORDER BY created_at, id
LIMIT $3;
`
	var (
		afterTime time.Time
		afterID   uuid.UUID
	)
	for {
		rows, err := r.pool.Query(ctx, q, afterTime, afterID, listAllPageSize)
		if err != nil {
			return err
		}
		page, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Job, error) {
			var j entity.Job
			err := row.Scan(&j.ID, &j.FileKey, &j.PurposeCode, &j.CreatedAt)
			return j, err
		})
		if err != nil {
			return err
		}

		for _, j := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(j); err != nil {
				return err
			}
		}
		if len(page) < listAllPageSize {
			return nil
		}
		last := page[len(page)-1]
		afterTime, afterID = last.CreatedAt, last.ID
	}
}

// ListStale returns queued or processing jobs not touched since olderThan.
func (r *JobRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]entity.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + jobColumns + `
FROM jobs
WHERE status IN ('queued', 'processing') AND updated_at < $1
ORDER BY updated_at
LIMIT $2;`
	return r.queryJobs(ctx, q, olderThan, limit)
}

func (r *JobRepository) FileKeyExists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE file_key = $1);`, key).Scan(&ok)
	return ok, err
}

func (r *JobRepository) ListFileKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT file_key FROM jobs;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

func (r *JobRepository) Results(ctx context.Context, jobID uuid.UUID) ([]entity.OCRResult, error) {
	const q = `
SELECT id, job_id, page_number, full_text, confidence, language, word_count, char_count,
       processing_time, raw_data, created_at
FROM ocr_results
WHERE job_id = $1
ORDER BY page_number;
`
	rows, err := r.pool.Query(ctx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.OCRResult
	for rows.Next() {
		var (
			res entity.OCRResult
			raw []byte
		)
		if err := rows.Scan(&res.ID, &res.JobID, &res.PageNumber, &res.FullText, &res.Confidence, &res.Language,
			&res.WordCount, &res.CharCount, &res.ProcessingTime, &raw, &res.CreatedAt); err != nil {
			return nil, err
		}
		if raw != nil {
			res.RawData = json.RawMessage(raw)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *JobRepository) missOrTerminal(ctx context.Context, id uuid.UUID) error {
	var statusText string
	err := r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, id).Scan(&statusText)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if entity.JobStatus(statusText).IsTerminal() {
		return ErrTerminal
	}
	return fmt.Errorf("job %s in status %s: %w", id, statusText, ErrConflict)
}
