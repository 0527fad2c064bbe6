package retention_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"doc-intake-service/internal/audit"
	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/retention"
	"doc-intake-service/internal/storage"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeJobs struct {
	jobs    map[uuid.UUID]entity.Job
	deleted []uuid.UUID
}

func (f *fakeJobs) ListAll(_ context.Context, fn func(entity.Job) error) error {
	for _, j := range f.jobs {
		if err := fn(j); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeJobs) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.jobs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeJobs) ListFileKeys(_ context.Context) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for _, j := range f.jobs {
		out[j.FileKey] = struct{}{}
	}
	return out, nil
}

type fakeAudits struct {
	cutoff time.Time
}

func (f *fakeAudits) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 7, nil
}

type recorder struct{ actions []audit.Action }

func (r *recorder) LogAction(_ context.Context, a audit.Action) *entity.AuditLog {
	r.actions = append(r.actions, a)
	return &entity.AuditLog{}
}

type fakeStore struct {
	objects   map[string]time.Time
	failOn    string
	deletions []string
}

func (s *fakeStore) Upload(context.Context, string, []byte, string) (string, error) { return "", nil }
func (s *fakeStore) Download(context.Context, string) ([]byte, error)               { return nil, nil }
func (s *fakeStore) GetURL(context.Context, string, time.Duration) (string, error)  { return "", nil }

func (s *fakeStore) Delete(_ context.Context, key string) (bool, error) {
	if key == s.failOn {
		return false, errors.New("storage unreachable")
	}
	_, ok := s.objects[key]
	delete(s.objects, key)
	if ok {
		s.deletions = append(s.deletions, key)
	}
	return ok, nil
}

func (s *fakeStore) List(context.Context, string) ([]storage.Object, error) {
	var out []storage.Object
	for k, t := range s.objects {
		out = append(out, storage.Object{Key: k, ModTime: t})
	}
	return out, nil
}

type fakeIndex struct{ removed []string }

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func job(key string, age time.Duration, purpose *string) entity.Job {
	return entity.Job{ID: uuid.New(), FileKey: key, CreatedAt: now.Add(-age), PurposeCode: purpose}
}

func newEngine(jobs *fakeJobs, store *fakeStore, rec *recorder, idx *fakeIndex) *retention.Engine {
	return retention.NewEngine(jobs, &fakeAudits{}, store, rec, retention.DefaultPolicy(), logger.NewNop(), idx).
		WithClock(func() time.Time { return now })
}

func TestPolicy_Hours(t *testing.T) {
	p := retention.DefaultPolicy()
	cases := map[string]int{"System Testing": 24, "General": 720, "Financial": 8760, "Legal": 61320, "Medical": 87600, "": 720, "Unknown": 720}
	for purpose, want := range cases {
		if got := p.Hours(purpose); got != want {
			t.Fatalf("purpose %q: expected %d, got %d", purpose, want, got)
		}
	}
}

func TestLoadPolicy_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := "default_hours: 48\npurposes:\n  Research: 100\n  General: 10\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := retention.LoadPolicy(path)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if p.Hours("Research") != 100 || p.Hours("General") != 10 || p.Hours("x") != 48 || p.Hours("Medical") != 87600 {
		t.Fatalf("unexpected merged policy: %+v", p)
	}
}

func TestCleanupExpiredJobs_DefaultThirtyDays(t *testing.T) {
	old := job("uploads/old.pdf", 31*24*time.Hour, nil)
	fresh := job("uploads/fresh.pdf", 29*24*time.Hour, nil)
	jobs := &fakeJobs{jobs: map[uuid.UUID]entity.Job{old.ID: old, fresh.ID: fresh}}
	store := &fakeStore{objects: map[string]time.Time{old.FileKey: now, fresh.FileKey: now}}
	rec := &recorder{}
	idx := &fakeIndex{}

	rep, err := newEngine(jobs, store, rec, idx).CleanupExpiredJobs(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rep.Deleted != 1 || rep.Failed != 0 {
		t.Fatalf("expected 1 deleted, got %+v", rep)
	}
	if _, ok := jobs.jobs[fresh.ID]; !ok {
		t.Fatalf("expected fresh job retained")
	}
	if len(store.deletions) != 1 || store.deletions[0] != old.FileKey {
		t.Fatalf("expected old file deleted, got %v", store.deletions)
	}
	if len(idx.removed) != 1 || idx.removed[0] != old.ID.String() {
		t.Fatalf("expected index entry removed, got %v", idx.removed)
	}
	if len(rec.actions) != 1 || rec.actions[0].Type != entity.ActionCleanupExpired || rec.actions[0].Status != entity.AuditSuccess {
		t.Fatalf("expected one success summary audit, got %+v", rec.actions)
	}
}

func TestCleanupExpiredJobs_FileFailureKeepsRow(t *testing.T) {
	purpose := "System Testing"
	bad := job("uploads/bad.pdf", 48*time.Hour, &purpose)
	jobs := &fakeJobs{jobs: map[uuid.UUID]entity.Job{bad.ID: bad}}
	store := &fakeStore{objects: map[string]time.Time{}, failOn: bad.FileKey}
	rec := &recorder{}

	rep, err := newEngine(jobs, store, rec, &fakeIndex{}).CleanupExpiredJobs(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rep.Failed != 1 || rep.Deleted != 0 {
		t.Fatalf("expected one failure, got %+v", rep)
	}
	if _, ok := jobs.jobs[bad.ID]; !ok {
		t.Fatalf("expected row kept when file deletion fails")
	}
	if rec.actions[0].Status != entity.AuditWarning {
		t.Fatalf("expected warning audit, got %s", rec.actions[0].Status)
	}
}

func TestCleanupAuditLogs_UsesOneYearCutoff(t *testing.T) {
	audits := &fakeAudits{}
	e := retention.NewEngine(&fakeJobs{}, audits, &fakeStore{}, &recorder{}, retention.DefaultPolicy(), logger.NewNop()).
		WithClock(func() time.Time { return now })

	n, err := e.CleanupAuditLogs(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("expected 7 deleted, got %d %v", n, err)
	}
	if want := now.AddDate(0, 0, -365); !audits.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, audits.cutoff)
	}
}

func TestCleanupOrphanedFiles_Idempotent(t *testing.T) {
	kept := job("uploads/kept.pdf", time.Hour, nil)
	jobs := &fakeJobs{jobs: map[uuid.UUID]entity.Job{kept.ID: kept}}
	store := &fakeStore{objects: map[string]time.Time{
		kept.FileKey:         now.Add(-48 * time.Hour),
		"uploads/orphan.pdf": now.Add(-48 * time.Hour),
		"uploads/young.pdf":  now.Add(-time.Hour),
	}}
	e := newEngine(jobs, store, &recorder{}, &fakeIndex{})

	rep, err := e.CleanupOrphanedFiles(context.Background())
	if err != nil || rep.Deleted != 1 {
		t.Fatalf("expected 1 orphan deleted, got %+v %v", rep, err)
	}
	if _, ok := store.objects["uploads/young.pdf"]; !ok {
		t.Fatalf("expected young file kept")
	}

	rep, err = e.CleanupOrphanedFiles(context.Background())
	if err != nil || rep.Deleted != 0 {
		t.Fatalf("expected no deletions on second run, got %+v %v", rep, err)
	}
}

func TestRun_AllIsolatesTasks(t *testing.T) {
	e := newEngine(&fakeJobs{jobs: map[uuid.UUID]entity.Job{}}, &fakeStore{objects: map[string]time.Time{}}, &recorder{}, &fakeIndex{})
	sums := e.Run(context.Background(), retention.TaskAll)
	if len(sums) != 3 || !retention.AllSucceeded(sums) {
		t.Fatalf("expected 3 successful summaries, got %+v", sums)
	}
	if _, err := retention.ParseTask("bogus"); err == nil {
		t.Fatalf("expected error for unknown task")
	}
}

func TestSchedule_Next(t *testing.T) {
	daily := retention.Schedule{Task: retention.TaskJobs, Hour: 2}
	// now is Saturday 12:00 UTC
	if got := daily.Next(now); !got.Equal(time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected daily next: %v", got)
	}

	sunday := time.Sunday
	weekly := retention.Schedule{Task: retention.TaskAudit, Hour: 3, Weekday: &sunday}
	if got := weekly.Next(now); !got.Equal(time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected weekly next: %v", got)
	}
	after := time.Date(2024, 6, 2, 5, 0, 0, 0, time.UTC)
	if got := weekly.Next(after); !got.Equal(time.Date(2024, 6, 9, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected weekly next after run: %v", got)
	}
}
