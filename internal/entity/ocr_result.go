package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OCRResult is the extracted text of one page of a job.
type OCRResult struct {
	ID             uuid.UUID       `json:"id"`
	JobID          uuid.UUID       `json:"job_id"`
	PageNumber     int             `json:"page_number"`
	FullText       string          `json:"full_text"`
	Confidence     float64         `json:"confidence"`
	Language       string          `json:"language"`
	WordCount      int             `json:"word_count"`
	CharCount      int             `json:"char_count"`
	ProcessingTime float64         `json:"processing_time"`
	RawData        json.RawMessage `json:"raw_data,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PageBreak separates page texts in a merged multi-page document.
const PageBreak = "\n\n--- Page Break ---\n\n"
