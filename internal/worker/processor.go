package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/governance"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/observability"
	"doc-intake-service/internal/ocr"
	"doc-intake-service/internal/repository/postgresql"
	"doc-intake-service/internal/security"
	"doc-intake-service/internal/storage"
)

type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error
	SetGovernance(ctx context.Context, id uuid.UUID, flags json.RawMessage, containsPII bool, piiTypes []string) error
	Complete(ctx context.Context, id uuid.UUID, p postgresql.CompleteParams) (entity.ReviewStatus, error)
	Fail(ctx context.Context, id uuid.UUID, msg string) error
}

type Extractor interface {
	Extract(ctx context.Context, path, mimeType, language string) (*ocr.Document, error)
}

type VectorIndexer interface {
	AddDocument(ctx context.Context, jobID, text string, metadata map[string]any) error
}

type TextIndexer interface {
	IndexDocument(ctx context.Context, jobID, text, language string) error
}

type ProcessorDeps struct {
	Repo      JobRepo
	Storage   storage.Storage
	Extractor Extractor
	Vector    VectorIndexer // optional
	FullText  TextIndexer   // optional
	Heartbeat time.Duration // defaults to one minute
	Log       *logger.Logger
}

type Processor struct {
	repo      JobRepo
	storage   storage.Storage
	extractor Extractor
	vector    VectorIndexer
	fullText  TextIndexer
	heartbeat time.Duration
	log       *logger.Logger
	tracer    trace.Tracer
}

// Outcome is written to the task record when processing finishes.
type Outcome struct {
	JobID        string              `json:"job_id"`
	Pages        int                 `json:"pages"`
	Confidence   float64             `json:"confidence"`
	ReviewStatus entity.ReviewStatus `json:"review_status,omitempty"`
	Skipped      string              `json:"skipped,omitempty"`
}

func NewProcessor(d ProcessorDeps) *Processor {
	if d.Heartbeat <= 0 {
		d.Heartbeat = time.Minute
	}
	return &Processor{
		repo:      d.Repo,
		storage:   d.Storage,
		extractor: d.Extractor,
		vector:    d.Vector,
		fullText:  d.FullText,
		heartbeat: d.Heartbeat,
		log:       d.Log,
		tracer:    observability.Tracer(),
	}
}

// Process runs one process_document task. A missing or already terminal job
// is discarded without error.
func (p *Processor) Process(ctx context.Context, task *entity.Task) (*Outcome, error) {
	var payload entity.ProcessDocumentPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	id, err := uuid.Parse(payload.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}

	ctx, span := p.tracer.Start(ctx, "process_document", trace.WithAttributes(
		attribute.String("job.id", id.String()),
		attribute.String("task.id", task.ID),
	))
	defer span.End()

	start := time.Now()
	log := p.log.With("job_id", id.String(), "task_id", task.ID)

	job, err := p.repo.GetByID(ctx, id)
	if errors.Is(err, postgresql.ErrNotFound) {
		log.Warn("job not found, discarding task")
		return &Outcome{JobID: id.String(), Skipped: "not_found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.Status.IsTerminal() {
		log.Info("job already terminal, skipping", "status", job.Status)
		return &Outcome{JobID: id.String(), Skipped: string(job.Status)}, nil
	}

	if err := p.repo.MarkProcessing(ctx, id); err != nil {
		if errors.Is(err, postgresql.ErrTerminal) {
			return &Outcome{JobID: id.String(), Skipped: "terminal"}, nil
		}
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	log.Info("job processing started", "step", "started", "file_type", job.FileType)

	out, err := p.run(ctx, log, job, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("job failed", "step", "failed", "duration_ms", time.Since(start).Milliseconds(), "error", err)
		if ferr := p.repo.Fail(ctx, id, err.Error()); ferr != nil && !errors.Is(ferr, postgresql.ErrTerminal) {
			log.Error("mark failed error", "error", ferr)
		}
		return nil, err
	}
	if out.Skipped != "" {
		return out, nil
	}

	log.Info("job completed", "step", "completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"pages", out.Pages, "confidence", out.Confidence, "review_status", out.ReviewStatus,
	)
	return out, nil
}

func (p *Processor) run(ctx context.Context, log *logger.Logger, job *entity.Job, payload entity.ProcessDocumentPayload) (*Outcome, error) {
	id := job.ID
	language := payload.Language
	if language == "" {
		language = job.Language
	}
	fileKey := payload.FileKey
	if fileKey == "" {
		fileKey = job.FileKey
	}

	var (
		path    string
		cleanup = func() {}
	)
	defer func() { cleanup() }()
	err := p.step(ctx, log, "download", func(ctx context.Context) error {
		var err error
		path, cleanup, err = p.localFile(ctx, fileKey)
		if err != nil {
			return err
		}
		return p.repo.UpdateProgress(ctx, id, entity.ProgressDownloaded, "downloaded")
	})
	if err != nil {
		return nil, err
	}

	var doc *ocr.Document
	err = p.step(ctx, log, "extract", func(ctx context.Context) error {
		var err error
		stop := p.keepAlive(ctx, log, id)
		doc, err = p.extractor.Extract(ctx, path, job.FileType, language)
		stop()
		if err != nil {
			return err
		}
		return p.repo.UpdateProgress(ctx, id, entity.ProgressExtracted, "extracted")
	})
	if err != nil {
		return nil, err
	}

	err = p.step(ctx, log, "governance", func(ctx context.Context) error {
		piiTypes := security.DetectPII(doc.FullText)
		flags := governance.Evaluate(job.Filename, doc.FullText, doc.AverageConfidence, piiTypes)
		raw, err := json.Marshal(flags)
		if err != nil {
			return fmt.Errorf("marshal guardrail flags: %w", err)
		}
		return p.repo.SetGovernance(ctx, id, raw, len(piiTypes) > 0, piiTypes)
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{JobID: id.String(), Pages: len(doc.Pages), Confidence: percent(doc.AverageConfidence)}
	err = p.step(ctx, log, "persist", func(ctx context.Context) error {
		results, err := pageRows(id, doc)
		if err != nil {
			return err
		}
		review, err := p.repo.Complete(ctx, id, postgresql.CompleteParams{
			Results:          results,
			TotalPages:       len(doc.Pages),
			Confidence:       out.Confidence,
			DetectedLanguage: doc.Language,
		})
		if errors.Is(err, postgresql.ErrTerminal) {
			out.Skipped = "terminal"
			return nil
		}
		out.ReviewStatus = review
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Skipped != "" {
		log.Info("job became terminal during processing, results discarded")
		return out, nil
	}

	if p.vector != nil {
		_ = p.step(ctx, log, "vector_index", func(ctx context.Context) error {
			meta := map[string]any{"filename": job.Filename, "language": doc.Language}
			if err := p.vector.AddDocument(ctx, id.String(), doc.FullText, meta); err != nil {
				log.Warn("vector indexing failed", "step", "vector_index", "error", err)
			}
			return nil
		})
	}
	if p.fullText != nil {
		_ = p.step(ctx, log, "fulltext_index", func(ctx context.Context) error {
			if err := p.fullText.IndexDocument(ctx, id.String(), doc.FullText, doc.Language); err != nil {
				log.Warn("full-text indexing failed", "step", "fulltext_index", "error", err)
			}
			return nil
		})
	}
	return out, nil
}

// keepAlive touches the job every heartbeat interval until the returned stop
// is called, so a long extraction is not mistaken for a stalled one.
func (p *Processor) keepAlive(ctx context.Context, log *logger.Logger, id uuid.UUID) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.repo.UpdateProgress(ctx, id, entity.ProgressDownloaded, "extracting"); err != nil && ctx.Err() == nil {
					log.Warn("job heartbeat failed", "step", "extract", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// step runs fn under a child span and logs its duration.
func (p *Processor) step(ctx context.Context, log *logger.Logger, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "step."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	ms := time.Since(start).Milliseconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("step failed", "step", name, "duration_ms", ms, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Debug("step done", "step", name, "duration_ms", ms)
	return nil
}

// localFile returns a filesystem path for key. Non-local backends are
// downloaded to a temp file removed by the returned cleanup.
func (p *Processor) localFile(ctx context.Context, key string) (string, func(), error) {
	if l, ok := p.storage.(storage.Localizer); ok {
		if path, ok := l.LocalPath(key); ok {
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return "", func() {}, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
				}
				return "", func() {}, err
			}
			return path, func() {}, nil
		}
	}

	data, err := p.storage.Download(ctx, key)
	if err != nil {
		return "", func() {}, err
	}
	f, err := os.CreateTemp("", "doc-*"+strings.ToLower(filepath.Ext(key)))
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			p.log.Warn("temp file cleanup failed", "path", f.Name(), "error", err)
		}
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

type rawPage struct {
	Engine string      `json:"engine"`
	Blocks []ocr.Block `json:"blocks"`
}

func pageRows(jobID uuid.UUID, doc *ocr.Document) ([]entity.OCRResult, error) {
	rows := make([]entity.OCRResult, 0, len(doc.Pages))
	for _, pg := range doc.Pages {
		raw, err := json.Marshal(rawPage{Engine: doc.Engine, Blocks: pg.Result.Blocks})
		if err != nil {
			return nil, fmt.Errorf("marshal blocks: %w", err)
		}
		lang := pg.Result.Language
		if lang == "" {
			lang = doc.Language
		}
		rows = append(rows, entity.OCRResult{
			ID:             uuid.New(),
			JobID:          jobID,
			PageNumber:     pg.Number,
			FullText:       pg.Result.FullText,
			Confidence:     percent(pg.Result.AverageConfidence),
			Language:       lang,
			WordCount:      len(strings.Fields(pg.Result.FullText)),
			CharCount:      utf8.RuneCountInString(pg.Result.FullText),
			ProcessingTime: pg.Result.ProcessingTime.Seconds(),
			RawData:        raw,
		})
	}
	return rows, nil
}

func percent(c float64) float64 {
	return float64(int(c*10000+0.5)) / 100
}
