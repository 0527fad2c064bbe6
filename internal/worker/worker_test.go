package worker_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"doc-intake-service/internal/audit"
	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/ocr"
	"doc-intake-service/internal/repository/postgresql"
	"doc-intake-service/internal/retention"
	"doc-intake-service/internal/service"
	"doc-intake-service/internal/storage"
	"doc-intake-service/internal/worker"
)

type fakeRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*entity.Job
	progress  []int
	steps     []string
	flags     json.RawMessage
	pii       bool
	completed *postgresql.CompleteParams
	failMsg   string
	requeued  []uuid.UUID
	stale     []entity.Job
}

func newFakeRepo(jobs ...*entity.Job) *fakeRepo {
	r := &fakeRepo{jobs: map[uuid.UUID]*entity.Job{}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeRepo) status(id uuid.UUID) entity.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		return j.Status
	}
	return ""
}

func (r *fakeRepo) sawStep(step string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.steps {
		if s == step {
			return true
		}
	}
	return false
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeRepo) MarkProcessing(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j.Status.IsTerminal() {
		return postgresql.ErrTerminal
	}
	j.Status = entity.StatusProcessing
	r.progress = append(r.progress, entity.ProgressStarted)
	return nil
}

// UpdateProgress applies only while processing, like the SQL guard.
func (r *fakeRepo) UpdateProgress(_ context.Context, id uuid.UUID, progress int, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j := r.jobs[id]; j.Status != entity.StatusProcessing {
		return postgresql.ErrConflict
	}
	if step == "extracting" {
		r.steps = append(r.steps, step)
		return nil
	}
	r.progress = append(r.progress, progress)
	r.steps = append(r.steps, step)
	return nil
}

func (r *fakeRepo) SetGovernance(_ context.Context, _ uuid.UUID, flags json.RawMessage, containsPII bool, _ []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags, r.pii = flags, containsPII
	r.progress = append(r.progress, entity.ProgressGoverned)
	return nil
}

func (r *fakeRepo) Complete(_ context.Context, id uuid.UUID, p postgresql.CompleteParams) (entity.ReviewStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j.Status.IsTerminal() {
		return "", postgresql.ErrTerminal
	}
	if j.Status != entity.StatusProcessing {
		return "", postgresql.ErrConflict
	}
	j.Status = entity.StatusCompleted
	r.completed = &p
	r.progress = append(r.progress, entity.ProgressPersisted)
	return entity.ReviewStatusFor(p.Confidence), nil
}

func (r *fakeRepo) Fail(_ context.Context, id uuid.UUID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Status = entity.StatusFailed
	r.failMsg = msg
	return nil
}

func (r *fakeRepo) ListStale(context.Context, time.Time, int) ([]entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale, nil
}

func (r *fakeRepo) Requeue(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if ok && j.Status.IsTerminal() {
		return postgresql.ErrTerminal
	}
	if ok {
		j.Status = entity.StatusQueued
	}
	r.requeued = append(r.requeued, id)
	return nil
}

// The methods below let the same store back a service.JobService.

func (r *fakeRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) List(context.Context, postgresql.JobFilter) ([]entity.Job, error) {
	return nil, nil
}

func (r *fakeRepo) Count(context.Context, postgresql.JobFilter) (int, error) {
	return 0, nil
}

func (r *fakeRepo) Results(context.Context, uuid.UUID) ([]entity.OCRResult, error) {
	return nil, nil
}

func (r *fakeRepo) SetReview(context.Context, uuid.UUID, entity.ReviewStatus) error {
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

type stubExtractor struct {
	doc  *ocr.Document
	err  error
	path string
}

func (s *stubExtractor) Extract(_ context.Context, path, _, _ string) (*ocr.Document, error) {
	s.path = path
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return s.doc, s.err
}

type recordingIndex struct {
	ids []string
	err error
}

func (x *recordingIndex) AddDocument(_ context.Context, id, _ string, _ map[string]any) error {
	x.ids = append(x.ids, id)
	return x.err
}

func (x *recordingIndex) IndexDocument(_ context.Context, id, _, _ string) error {
	x.ids = append(x.ids, id)
	return x.err
}

// remoteOnly hides the Localizer capability of the wrapped storage.
type remoteOnly struct{ storage.Storage }

func twoPageDoc(conf float64, text string) *ocr.Document {
	page := &ocr.Result{FullText: text, Blocks: []ocr.Block{{Text: text, Confidence: conf}}, AverageConfidence: conf, Language: "eng"}
	return &ocr.Document{
		Result: ocr.Result{FullText: text + entity.PageBreak + text, AverageConfidence: conf, Language: "eng"},
		Engine: "tesseract",
		Pages:  []ocr.PageResult{{Number: 1, Result: page}, {Number: 2, Result: page}},
	}
}

func setup(t *testing.T) (*storage.Local, *entity.Job, *entity.Task) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	job := &entity.Job{
		ID: uuid.New(), Filename: "statement.pdf", FileKey: "uploads/2024/06/x.pdf",
		FileType: "application/pdf", Language: "auto", Status: entity.StatusQueued,
	}
	if _, err := store.Upload(context.Background(), job.FileKey, []byte("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(entity.ProcessDocumentPayload{JobID: job.ID.String(), FileKey: job.FileKey, Language: "auto"})
	return store, job, &entity.Task{ID: "t1", Name: entity.TaskProcessDocument, Payload: payload}
}

func TestProcessor_CompletesJob(t *testing.T) {
	store, job, task := setup(t)
	repo := newFakeRepo(job)
	idx := &recordingIndex{}
	p := worker.NewProcessor(worker.ProcessorDeps{
		Repo:      repo,
		Storage:   store,
		Extractor: &stubExtractor{doc: twoPageDoc(0.85, "contact jane@example.com")},
		Vector:    idx,
		FullText:  idx,
		Log:       logger.NewNop(),
	})

	out, err := p.Process(context.Background(), task)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if out.ReviewStatus != entity.ReviewNeedsReview || out.Confidence != 85 || out.Pages != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	want := []int{10, 30, 60, 80, 100}
	if len(repo.progress) != len(want) {
		t.Fatalf("expected progress %v, got %v", want, repo.progress)
	}
	for i := range want {
		if repo.progress[i] != want[i] {
			t.Fatalf("expected progress %v, got %v", want, repo.progress)
		}
	}

	var flags struct {
		RiskAssessment struct {
			Level string `json:"level"`
		} `json:"risk_assessment"`
		PIITypes []string `json:"pii_types"`
	}
	if err := json.Unmarshal(repo.flags, &flags); err != nil {
		t.Fatalf("flags: %v", err)
	}
	if !repo.pii || flags.RiskAssessment.Level != "HIGH" || len(flags.PIITypes) == 0 {
		t.Fatalf("expected PII to raise risk to HIGH, got %s", repo.flags)
	}

	c := repo.completed
	if c == nil || len(c.Results) != 2 || c.Results[1].PageNumber != 2 || c.Results[0].Confidence != 85 {
		t.Fatalf("unexpected complete params %+v", c)
	}
	if !strings.Contains(string(c.Results[0].RawData), `"blocks"`) {
		t.Fatalf("expected blocks in raw data, got %s", c.Results[0].RawData)
	}
	if len(idx.ids) != 2 {
		t.Fatalf("expected both indexes updated, got %v", idx.ids)
	}
}

func TestProcessor_ExtractFailureMarksFailed(t *testing.T) {
	store, job, task := setup(t)
	repo := newFakeRepo(job)
	p := worker.NewProcessor(worker.ProcessorDeps{
		Repo: repo, Storage: store,
		Extractor: &stubExtractor{err: ocr.ErrEngineFailed},
		Log:       logger.NewNop(),
	})

	if _, err := p.Process(context.Background(), task); !errors.Is(err, ocr.ErrEngineFailed) {
		t.Fatalf("expected ErrEngineFailed, got %v", err)
	}
	if repo.jobs[job.ID].Status != entity.StatusFailed || !strings.Contains(repo.failMsg, "extract") {
		t.Fatalf("expected failed job with step in message, got %s %q", repo.jobs[job.ID].Status, repo.failMsg)
	}
	if repo.completed != nil {
		t.Fatalf("expected no completion")
	}
}

func TestProcessor_IndexFailureDoesNotFailJob(t *testing.T) {
	store, job, task := setup(t)
	repo := newFakeRepo(job)
	idx := &recordingIndex{err: errors.New("qdrant down")}
	p := worker.NewProcessor(worker.ProcessorDeps{
		Repo: repo, Storage: store,
		Extractor: &stubExtractor{doc: twoPageDoc(0.95, "plain text")},
		Vector:    idx, FullText: idx,
		Log: logger.NewNop(),
	})

	out, err := p.Process(context.Background(), task)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if out.ReviewStatus != entity.ReviewPending || repo.jobs[job.ID].Status != entity.StatusCompleted {
		t.Fatalf("expected completed job, got %+v", out)
	}
}

func TestProcessor_SkipsMissingAndTerminal(t *testing.T) {
	store, job, task := setup(t)
	p := worker.NewProcessor(worker.ProcessorDeps{Repo: newFakeRepo(), Storage: store, Extractor: &stubExtractor{}, Log: logger.NewNop()})
	out, err := p.Process(context.Background(), task)
	if err != nil || out.Skipped != "not_found" {
		t.Fatalf("expected discard of missing job, got %+v %v", out, err)
	}

	job.Status = entity.StatusCompleted
	ext := &stubExtractor{}
	p = worker.NewProcessor(worker.ProcessorDeps{Repo: newFakeRepo(job), Storage: store, Extractor: ext, Log: logger.NewNop()})
	out, err = p.Process(context.Background(), task)
	if err != nil || out.Skipped == "" || ext.path != "" {
		t.Fatalf("expected terminal job to be a no-op, got %+v %v", out, err)
	}
}

func TestProcessor_RemoteStorageUsesTempFile(t *testing.T) {
	store, job, task := setup(t)
	ext := &stubExtractor{doc: twoPageDoc(0.99, "x")}
	p := worker.NewProcessor(worker.ProcessorDeps{
		Repo: newFakeRepo(job), Storage: remoteOnly{store}, Extractor: ext, Log: logger.NewNop(),
	})

	if _, err := p.Process(context.Background(), task); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.HasSuffix(ext.path, ".pdf") {
		t.Fatalf("expected temp file with extension, got %s", ext.path)
	}
	if _, err := os.Stat(ext.path); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed, stat err %v", err)
	}
}

type countingProcessor struct {
	calls  int
	cancel context.CancelFunc
	err    error
}

func (c *countingProcessor) Process(context.Context, *entity.Task) (*worker.Outcome, error) {
	c.calls++
	if c.calls == 2 {
		c.cancel()
	}
	return &worker.Outcome{}, c.err
}

func TestPool_DrainsQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := service.NewMemoryQueue()
	for i := 0; i < 2; i++ {
		payload := entity.ProcessDocumentPayload{JobID: uuid.NewString(), FileKey: "uploads/a.png"}
		if _, err := q.Enqueue(ctx, entity.TaskProcessDocument, payload); err != nil {
			t.Fatal(err)
		}
	}
	proc := &countingProcessor{cancel: cancel}
	worker.NewPool(q, proc, 4, logger.NewNop()).WithDelays(10*time.Millisecond, 10*time.Millisecond).Run(ctx)

	if proc.calls != 2 {
		t.Fatalf("expected 2 tasks processed, got %d", proc.calls)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue drained, got %d", q.Len())
	}
}

func TestReaper_RequeuesStaleJobs(t *testing.T) {
	ctx := context.Background()
	fresh := &entity.Job{ID: uuid.New(), FileKey: "uploads/a.png", Status: entity.StatusProcessing, OCREngine: "tesseract"}
	done := &entity.Job{ID: uuid.New(), FileKey: "uploads/b.png", Status: entity.StatusCompleted}
	repo := newFakeRepo(fresh, done)
	repo.stale = []entity.Job{*fresh, *done}
	q := service.NewMemoryQueue()

	tasks, jobs := worker.NewReaper(q, repo, time.Minute, logger.NewNop()).Sweep(ctx)
	if tasks != 0 || jobs != 1 {
		t.Fatalf("expected 1 job requeued, got tasks=%d jobs=%d", tasks, jobs)
	}
	if q.Len() != 1 || len(repo.requeued) != 1 || repo.requeued[0] != fresh.ID {
		t.Fatalf("expected only the live job re-enqueued, got %v", repo.requeued)
	}
}

type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
	doc     *ocr.Document
}

func (b *blockingExtractor) Extract(ctx context.Context, _, _, _ string) (*ocr.Document, error) {
	close(b.started)
	select {
	case <-b.release:
		return b.doc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReaper_LeavesClaimedJobRunning(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, job, _ := setup(t)
	repo := newFakeRepo(job)
	repo.stale = []entity.Job{*job}
	q := service.NewMemoryQueue()
	payload := entity.ProcessDocumentPayload{JobID: job.ID.String(), FileKey: job.FileKey, Language: "auto"}
	if _, err := q.Enqueue(ctx, entity.TaskProcessDocument, payload); err != nil {
		t.Fatal(err)
	}

	ext := &blockingExtractor{started: make(chan struct{}), release: make(chan struct{}), doc: twoPageDoc(0.97, "long scan")}
	p := worker.NewProcessor(worker.ProcessorDeps{
		Repo: repo, Storage: store, Extractor: ext,
		Heartbeat: 5 * time.Millisecond,
		Log:       logger.NewNop(),
	})
	pool := worker.NewPool(q, p, 1, logger.NewNop()).WithDelays(5*time.Millisecond, 5*time.Millisecond)
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	<-ext.started
	waitFor(t, "heartbeat", func() bool { return repo.sawStep("extracting") })

	if _, jobs := worker.NewReaper(q, repo, time.Minute, logger.NewNop()).Sweep(ctx); jobs != 0 {
		t.Fatalf("expected claimed job to be left alone, got %d requeued", jobs)
	}

	close(ext.release)
	waitFor(t, "completion", func() bool { return repo.status(job.ID) == entity.StatusCompleted })
	cancel()
	<-done

	if len(repo.requeued) != 0 || repo.failMsg != "" {
		t.Fatalf("expected no requeue or failure, got %v %q", repo.requeued, repo.failMsg)
	}
	if q.Len() != 0 {
		t.Fatalf("expected no duplicate task, got %d pending", q.Len())
	}
}

func TestReaper_SkipsJobWithPendingTask(t *testing.T) {
	ctx := context.Background()
	waiting := &entity.Job{ID: uuid.New(), FileKey: "uploads/a.png", Status: entity.StatusQueued}
	repo := newFakeRepo(waiting)
	repo.stale = []entity.Job{*waiting}
	q := service.NewMemoryQueue()
	_, _ = q.Enqueue(ctx, entity.TaskProcessDocument, entity.ProcessDocumentPayload{JobID: waiting.ID.String(), FileKey: waiting.FileKey})

	if _, jobs := worker.NewReaper(q, repo, time.Minute, logger.NewNop()).Sweep(ctx); jobs != 0 {
		t.Fatalf("expected no requeue for a pending task, got %d", jobs)
	}
	if q.Len() != 1 {
		t.Fatalf("expected a single task, got %d", q.Len())
	}
}

type auditStub struct{}

func (auditStub) LogAction(context.Context, audit.Action) *entity.AuditLog { return nil }

func TestRunner_ConsumesUploadsInProcess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	repo := newFakeRepo()
	q := service.NewMemoryQueue()
	jobs := service.NewJobService(service.JobServiceDeps{
		Repo: repo, Queue: q, Storage: store, Audit: auditStub{},
		Policy: retention.DefaultPolicy(), MaxFileSize: 1 << 20, Log: logger.NewNop(),
	})

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.Upload(ctx, service.UploadRequest{Filename: "scan.png", ContentType: "image/png", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	ext := &stubExtractor{doc: twoPageDoc(0.96, "hello")}
	p := worker.NewProcessor(worker.ProcessorDeps{Repo: repo, Storage: store, Extractor: ext, Log: logger.NewNop()})
	pool := worker.NewPool(q, p, 1, logger.NewNop()).WithDelays(5*time.Millisecond, 5*time.Millisecond)
	runner := worker.NewRunner(pool, worker.NewReaper(q, repo, time.Minute, logger.NewNop()), nil, logger.NewNop())

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	waitFor(t, "upload to be processed", func() bool { return repo.status(job.ID) == entity.StatusCompleted })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if err := runner.Close(); err != nil {
		t.Fatalf("expected nil close error, got %v", err)
	}

	got, _ := repo.GetByID(context.Background(), job.ID)
	if got.RetryCount != 0 || len(repo.requeued) != 0 {
		t.Fatalf("expected first-attempt processing, got retry_count=%d requeued=%v", got.RetryCount, repo.requeued)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue drained, got %d", q.Len())
	}
}
