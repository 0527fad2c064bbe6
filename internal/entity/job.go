package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"

	// StatusOCRComplete is written by older deployments; treated like completed.
	StatusOCRComplete JobStatus = "ocr_complete"
)

// IsTerminal reports whether the worker may no longer mutate the job.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusOCRComplete, StatusFailed:
		return true
	}
	return false
}

// ResultsAvailable reports whether OCR results can be served for the job.
func (s JobStatus) ResultsAvailable() bool {
	return s == StatusCompleted || s == StatusOCRComplete
}

type ReviewStatus string

const (
	ReviewPending     ReviewStatus = "pending"
	ReviewNeedsReview ReviewStatus = "needs_review"
	ReviewApproved    ReviewStatus = "approved"
	ReviewRejected    ReviewStatus = "rejected"
)

func (r ReviewStatus) Valid() bool {
	switch r {
	case ReviewPending, ReviewNeedsReview, ReviewApproved, ReviewRejected:
		return true
	}
	return false
}

// Progress checkpoints written by the pipeline, in order.
const (
	ProgressQueued     = 0
	ProgressStarted    = 10
	ProgressDownloaded = 30
	ProgressExtracted  = 60
	ProgressGoverned   = 80
	ProgressPersisted  = 100
)

// ConfidenceReviewThreshold is the percentage below which a completed job
// is flagged for manual review.
const ConfidenceReviewThreshold = 90.0

const (
	DefaultLanguage  = "auto"
	DefaultOCREngine = "tesseract"
)

type Job struct {
	ID uuid.UUID `json:"id"`

	Filename  string `json:"filename"`
	FileSize  int64  `json:"file_size"`
	FileKey   string `json:"file_key"`
	FileType  string `json:"file_type"`
	Language  string `json:"language"`
	OCREngine string `json:"ocr_engine"`

	Status       JobStatus    `json:"status"`
	Progress     int          `json:"progress"`
	CurrentStep  *string      `json:"current_step,omitempty"`
	ReviewStatus ReviewStatus `json:"review_status"`

	TotalPages       int      `json:"total_pages"`
	ProcessedPages   int      `json:"processed_pages"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	DetectedLanguage *string  `json:"detected_language,omitempty"`

	ErrorMessage *string `json:"error_message,omitempty"`
	RetryCount   int     `json:"retry_count"`

	ContainsPII    bool            `json:"contains_pii"`
	PIITypes       []string        `json:"pii_types,omitempty"`
	GuardrailFlags json.RawMessage `json:"guardrail_flags,omitempty"`

	DataPrincipalID     *string    `json:"data_principal_id,omitempty"`
	PurposeCode         *string    `json:"purpose_code,omitempty"`
	ConsentVerified     bool       `json:"consent_verified"`
	DataRetentionPolicy *time.Time `json:"data_retention_policy,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Purpose returns the purpose code or "" when unset.
func (j *Job) Purpose() string {
	if j.PurposeCode == nil {
		return ""
	}
	return *j.PurposeCode
}

// ReviewStatusFor applies the automatic quality gate to a confidence
// percentage.
func ReviewStatusFor(confidence float64) ReviewStatus {
	if confidence < ConfidenceReviewThreshold {
		return ReviewNeedsReview
	}
	return ReviewPending
}
