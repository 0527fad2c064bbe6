package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"doc-intake-service/internal/audit"
	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/repository/postgresql"
	"doc-intake-service/internal/retention"
	"doc-intake-service/internal/search"
	"doc-intake-service/internal/service"
	"doc-intake-service/internal/vector"
)

type AuditRecorder interface {
	LogAction(ctx context.Context, a audit.Action) *entity.AuditLog
}

type TextSearcher interface {
	Search(ctx context.Context, query string, limit int, language string) ([]search.Hit, error)
	Stats(ctx context.Context) (search.Stats, error)
}

type SimilarityFinder interface {
	FindSimilar(ctx context.Context, text string, n int, minSimilarity float64) ([]vector.Match, error)
	FindSimilarByJob(ctx context.Context, jobID string, n int, minSimilarity float64) ([]vector.Match, error)
	Stats(ctx context.Context) (vector.Stats, error)
}

type Cleaner interface {
	Run(ctx context.Context, task retention.Task) []retention.RunSummary
}

// Deps lists what the handlers need. Search and Vector are nil when the
// feature is disabled.
type Deps struct {
	Jobs           *service.JobService
	Search         TextSearcher
	Vector         SimilarityFinder
	Cleaner        Cleaner
	Audits         audit.Lister
	Recorder       AuditRecorder
	AdminSecret    string
	MaxUploadBytes int64
	Log            *logger.Logger
}

type Handler struct {
	jobs      *service.JobService
	search    TextSearcher
	vector    SimilarityFinder
	cleaner   Cleaner
	audits    audit.Lister
	rec       AuditRecorder
	secret    string
	maxUpload int64
	log       *logger.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		jobs:      d.Jobs,
		search:    d.Search,
		vector:    d.Vector,
		cleaner:   d.Cleaner,
		audits:    d.Audits,
		rec:       d.Recorder,
		secret:    d.AdminSecret,
		maxUpload: d.MaxUploadBytes,
		log:       log.With("component", "http"),
	}
}

// multipart overhead allowed on top of the file size limit
const formOverhead = 1 << 20

type uploadResp struct {
	JobID  string           `json:"job_id"`
	Status entity.JobStatus `json:"status"`
}

// Upload godoc
// @Summary Upload a document for OCR
// @Description Stores the file, creates a queued job and enqueues processing.
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "document (pdf, png, jpeg, tiff)"
// @Param language formData string false "language hint (auto, en, hi, ta, te)"
// @Param ocr_engine formData string false "ocr engine"
// @Param purpose_code formData string false "processing purpose (drives retention)"
// @Param data_principal_id formData string false "data principal id"
// @Param consent_verified formData bool false "consent verified"
// @Success 201 {object} uploadResp
// @Failure 400 {object} apiError
// @Failure 413 {object} apiError
// @Failure 415 {object} apiError
// @Failure 500 {object} apiError
// @Router /api/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeErr(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "could not read file")
		return
	}

	consent, _ := strconv.ParseBool(r.FormValue("consent_verified"))
	job, err := h.jobs.Upload(r.Context(), service.UploadRequest{
		Filename:        hdr.Filename,
		ContentType:     hdr.Header.Get("Content-Type"),
		Data:            data,
		Language:        r.FormValue("language"),
		OCREngine:       r.FormValue("ocr_engine"),
		PurposeCode:     r.FormValue("purpose_code"),
		DataPrincipalID: r.FormValue("data_principal_id"),
		ConsentVerified: consent,
		ActorIP:         audit.ClientIP("", r),
	})
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResp{JobID: job.ID.String(), Status: job.Status})
}

type jobListResp struct {
	Jobs   []entity.Job `json:"jobs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ListJobs godoc
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Param status query string false "queued, processing, completed, failed"
// @Param review_status query string false "pending, needs_review, approved, rejected"
// @Param limit query int false "page size (default 50, max 100)"
// @Param offset query int false "offset"
// @Success 200 {object} jobListResp
// @Failure 400 {object} apiError
// @Router /api/jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	jobs, total, err := h.jobs.ListJobs(r.Context(), postgresql.JobFilter{
		Status:       entity.JobStatus(q.Get("status")),
		ReviewStatus: entity.ReviewStatus(q.Get("review_status")),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, jobListResp{Jobs: jobs, Total: total, Limit: limit, Offset: offset})
}

// ListNeedsReview godoc
// @Summary List completed jobs awaiting manual review
// @Tags jobs
// @Produce json
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} jobListResp
// @Router /api/jobs/needs-review [get]
func (h *Handler) ListNeedsReview(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}
	jobs, total, err := h.jobs.ListNeedsReview(r.Context(), limit, offset)
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, jobListResp{Jobs: jobs, Total: total, Limit: limit, Offset: offset})
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetResults godoc
// @Summary Get OCR results
// @Description Full text joined across pages plus per-page results. Access is audited.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} service.JobResults
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /api/jobs/{id}/results [get]
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	res, err := h.jobs.GetResults(r.Context(), id, audit.ClientIP("", r))
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reviewDTO struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

// Review godoc
// @Summary Approve or reject a completed job
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param request body reviewDTO true "decision: approve or reject"
// @Success 200 {object} entity.Job
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /api/jobs/{id}/review [patch]
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	var dto reviewDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	job, err := h.jobs.Review(r.Context(), id, service.ReviewDecision(strings.ToLower(dto.Decision)), dto.Notes, audit.ClientIP("", r))
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type deleteResp struct {
	JobID   string `json:"job_id"`
	Deleted bool   `json:"deleted"`
}

// DeleteJob godoc
// @Summary Delete a job, its file and its results
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} deleteResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/jobs/{id} [delete]
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := h.jobs.DeleteJob(r.Context(), id, audit.ClientIP("", r)); err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResp{JobID: id.String(), Deleted: true})
}

// Transparency godoc
// @Summary Processing transparency report
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} governance.TransparencyReport
// @Failure 404 {object} apiError
// @Router /api/jobs/{id}/transparency [get]
func (h *Handler) Transparency(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	rep, err := h.jobs.Transparency(r.Context(), id)
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type searchResp struct {
	Query      string          `json:"query"`
	Results    []search.Result `json:"results"`
	Total      int             `json:"total"`
	SearchType string          `json:"search_type"`
}

// Search godoc
// @Summary Full-text search over extracted text
// @Tags search
// @Produce json
// @Param q query string true "query"
// @Param limit query int false "max results (default 10, max 100)"
// @Param language query string false "language filter"
// @Success 200 {object} searchResp
// @Failure 503 {object} apiError
// @Router /api/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeErr(w, http.StatusServiceUnavailable, "full-text search is disabled")
		return
	}
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), search.DefaultLimit)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid limit")
		return
	}
	hits, err := h.search.Search(r.Context(), q.Get("q"), limit, q.Get("language"))
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	results := make([]search.Result, len(hits))
	for i, hit := range hits {
		results[i] = search.Result{JobID: hit.JobID, Snippet: hit.Snippet, Score: hit.Rank, Language: hit.Language, Source: "fts"}
	}
	writeJSON(w, http.StatusOK, searchResp{Query: q.Get("q"), Results: results, Total: len(results), SearchType: "fts"})
}

type hybridDTO struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	FTSWeight *float64 `json:"fts_weight,omitempty"`
}

// HybridSearch godoc
// @Summary Keyword and semantic search combined
// @Description score = |bm25|*fts_weight + similarity*(1-fts_weight). Semantic results are skipped when vector search is disabled or fails.
// @Tags search
// @Accept json
// @Produce json
// @Param request body hybridDTO true "query, limit, fts_weight (default 0.5)"
// @Success 200 {object} searchResp
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /api/search/hybrid [post]
func (h *Handler) HybridSearch(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeErr(w, http.StatusServiceUnavailable, "full-text search is disabled")
		return
	}
	var dto hybridDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(dto.Query) == "" {
		writeErr(w, http.StatusBadRequest, "query is required")
		return
	}
	if dto.Limit <= 0 || dto.Limit > search.MaxLimit {
		dto.Limit = search.DefaultLimit
	}
	weight := 0.5
	if dto.FTSWeight != nil {
		weight = *dto.FTSWeight
	}

	var hits []search.Hit
	if weight > 0 {
		var err error
		hits, err = h.search.Search(r.Context(), dto.Query, dto.Limit*2, "")
		if err != nil {
			writeServiceErr(w, h.log, err)
			return
		}
	}
	var semantic []search.SemanticHit
	if weight < 1 && h.vector != nil {
		matches, err := h.vector.FindSimilar(r.Context(), dto.Query, dto.Limit*2, 0)
		if err != nil {
			h.log.Warn("semantic part of hybrid search failed", "error", err)
		}
		for _, m := range matches {
			semantic = append(semantic, search.SemanticHit{JobID: m.JobID, Snippet: m.TextPreview, Similarity: m.Similarity})
		}
	}

	results := search.Combine(hits, semantic, weight, dto.Limit)
	writeJSON(w, http.StatusOK, searchResp{Query: dto.Query, Results: results, Total: len(results), SearchType: "hybrid"})
}

// SearchStats godoc
// @Summary Full-text index statistics
// @Tags search
// @Produce json
// @Success 200 {object} search.Stats
// @Failure 503 {object} apiError
// @Router /api/search/stats [get]
func (h *Handler) SearchStats(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeErr(w, http.StatusServiceUnavailable, "full-text search is disabled")
		return
	}
	st, err := h.search.Stats(r.Context())
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type similarDTO struct {
	Query         string   `json:"query"`
	NResults      int      `json:"n_results"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
}

type similarResp struct {
	QueryJobID string         `json:"query_job_id,omitempty"`
	Documents  []vector.Match `json:"similar_documents"`
	Count      int            `json:"count"`
}

const (
	defaultSimilarResults  = 5
	maxSimilarResults      = 20
	defaultSimilarityFloor = 0.5
)

// SimilarText godoc
// @Summary Documents semantically similar to a text
// @Tags vector
// @Accept json
// @Produce json
// @Param request body similarDTO true "query, n_results (1-20), min_similarity (0-1)"
// @Success 200 {object} similarResp
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /api/vector/similar [post]
func (h *Handler) SimilarText(w http.ResponseWriter, r *http.Request) {
	if h.vector == nil {
		writeErr(w, http.StatusServiceUnavailable, "vector search is disabled")
		return
	}
	var dto similarDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	n, minSim, err := similarParams(dto.NResults, dto.MinSimilarity)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	matches, err := h.vector.FindSimilar(r.Context(), dto.Query, n, minSim)
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, similarResp{Documents: matches, Count: len(matches)})
}

// SimilarJob godoc
// @Summary Documents similar to a processed job
// @Tags vector
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param n_results query int false "1-20, default 5"
// @Param min_similarity query number false "0-1, default 0.5"
// @Success 200 {object} similarResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 503 {object} apiError
// @Router /api/vector/jobs/{id}/similar [get]
func (h *Handler) SimilarJob(w http.ResponseWriter, r *http.Request) {
	if h.vector == nil {
		writeErr(w, http.StatusServiceUnavailable, "vector search is disabled")
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	nRaw, err := intParam(q.Get("n_results"), 0)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid n_results")
		return
	}
	var minSim *float64
	if s := q.Get("min_similarity"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid min_similarity")
			return
		}
		minSim = &v
	}
	n, floor, err := similarParams(nRaw, minSim)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.jobs.GetJob(r.Context(), id); err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	matches, err := h.vector.FindSimilarByJob(r.Context(), id.String(), n, floor)
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, similarResp{QueryJobID: id.String(), Documents: matches, Count: len(matches)})
}

// VectorStats godoc
// @Summary Vector store statistics
// @Tags vector
// @Produce json
// @Success 200 {object} vector.Stats
// @Router /api/vector/stats [get]
func (h *Handler) VectorStats(w http.ResponseWriter, r *http.Request) {
	if h.vector == nil {
		writeJSON(w, http.StatusOK, vector.Stats{Enabled: false})
		return
	}
	st, err := h.vector.Stats(r.Context())
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type cleanupResp struct {
	Task    retention.Task         `json:"task"`
	Status  string                 `json:"status"`
	Results []retention.RunSummary `json:"results"`
}

// Cleanup godoc
// @Summary Run retention cleanup now
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param task query string false "jobs, audit, orphaned or all (default)"
// @Success 200 {object} cleanupResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Failure 500 {object} cleanupResp
// @Router /api/admin/cleanup [post]
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("task")
	if name == "" {
		name = string(retention.TaskAll)
	}
	task, err := retention.ParseTask(name)
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}

	sums := h.cleaner.Run(r.Context(), task)
	resp := cleanupResp{Task: task, Status: "success", Results: sums}
	code := http.StatusOK
	if !retention.AllSucceeded(sums) {
		resp.Status = "failed"
		code = http.StatusInternalServerError
	}
	h.rec.LogAction(r.Context(), audit.Action{
		Type:         entity.ActionAdminCleanup,
		ResourceType: "system",
		ResourceID:   string(task),
		UserID:       AdminSubject(r.Context()),
		Request:      r,
		Status:       auditStatus(code == http.StatusOK),
		Details:      map[string]any{"results": sums},
	})
	writeJSON(w, code, resp)
}

type auditListResp struct {
	Logs   []entity.AuditLog `json:"logs"`
	Count  int               `json:"count"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ListAudit godoc
// @Summary List audit log entries
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param action_type query string false "action type"
// @Param status query string false "success, failed, warning, unauthorized"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} auditListResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Router /api/admin/audit [get]
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	f, ok := auditFilter(w, r)
	if !ok {
		return
	}
	logs, err := h.audits.List(r.Context(), f)
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, auditListResp{Logs: logs, Count: len(logs), Limit: f.Limit, Offset: f.Offset})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportAudit godoc
// @Summary Export audit log entries as XLSX
// @Tags admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param action_type query string false "action type"
// @Param status query string false "status"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Success 200 {file} file
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Router /api/admin/audit/export [get]
func (h *Handler) ExportAudit(w http.ResponseWriter, r *http.Request) {
	f, ok := auditFilter(w, r)
	if !ok {
		return
	}
	f.Limit = 0
	data, rows, err := audit.ExportXLSX(r.Context(), h.audits, f)
	if err != nil {
		writeServiceErr(w, h.log, err)
		return
	}
	h.rec.LogAction(r.Context(), audit.Action{
		Type:         entity.ActionExportAudit,
		ResourceType: "audit_log",
		UserID:       AdminSubject(r.Context()),
		Request:      r,
		Details:      map[string]any{"rows": rows},
	})

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="audit-%s.xlsx"`, time.Now().UTC().Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func auditStatus(ok bool) entity.AuditStatus {
	if ok {
		return entity.AuditSuccess
	}
	return entity.AuditFailed
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil || limit < 0 {
		writeErr(w, http.StatusBadRequest, "invalid limit")
		return 0, 0, false
	}
	offset, err = intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeErr(w, http.StatusBadRequest, "invalid offset")
		return 0, 0, false
	}
	if limit == 0 || limit > 100 {
		limit = 50
	}
	return limit, offset, true
}

func similarParams(n int, minSim *float64) (int, float64, error) {
	if n == 0 {
		n = defaultSimilarResults
	}
	if n < 1 || n > maxSimilarResults {
		return 0, 0, fmt.Errorf("n_results must be between 1 and %d", maxSimilarResults)
	}
	floor := defaultSimilarityFloor
	if minSim != nil {
		floor = *minSim
	}
	if floor < 0 || floor > 1 {
		return 0, 0, errors.New("min_similarity must be between 0 and 1")
	}
	return n, floor, nil
}

func auditFilter(w http.ResponseWriter, r *http.Request) (postgresql.AuditFilter, bool) {
	q := r.URL.Query()
	limit, offset, ok := paging(w, r)
	if !ok {
		return postgresql.AuditFilter{}, false
	}
	f := postgresql.AuditFilter{
		ActionType: q.Get("action_type"),
		Status:     entity.AuditStatus(q.Get("status")),
		Limit:      limit,
		Offset:     offset,
	}
	for key, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		if s := q.Get(key); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeErr(w, http.StatusBadRequest, "invalid "+key)
				return postgresql.AuditFilter{}, false
			}
			*dst = t
		}
	}
	return f, true
}
