package governance

import (
	"time"

	"doc-intake-service/internal/entity"
)

type TransparencyStep struct {
	Step     string `json:"step"`
	Status   string `json:"status"`
	Engine   string `json:"engine,omitempty"`
	Detected *bool  `json:"detected,omitempty"`
}

// TransparencyReport explains to a data principal how a document was handled.
type TransparencyReport struct {
	JobID           string             `json:"job_id"`
	Steps           []TransparencyStep `json:"processing_steps"`
	Purpose         string             `json:"purpose"`
	ConsentVerified bool               `json:"consent_verified"`
	RetainUntil     *time.Time         `json:"data_retention"`
	ReviewStatus    string             `json:"review_status"`
}

func BuildTransparencyReport(job *entity.Job) TransparencyReport {
	ocrStatus := "Pending"
	switch {
	case job.Status.ResultsAvailable():
		ocrStatus = "Completed"
	case job.Status == entity.StatusFailed:
		ocrStatus = "Failed"
	case job.Status == entity.StatusProcessing:
		ocrStatus = "In Progress"
	}
	pii := job.ContainsPII

	return TransparencyReport{
		JobID: job.ID.String(),
		Steps: []TransparencyStep{
			{Step: "Upload", Status: "Completed"},
			{Step: "OCR Extraction", Status: ocrStatus, Engine: job.OCREngine},
			{Step: "PII Detection", Status: ocrStatus, Detected: &pii},
			{Step: "Risk Assessment", Status: ocrStatus},
		},
		Purpose:         job.Purpose(),
		ConsentVerified: job.ConsentVerified,
		RetainUntil:     job.DataRetentionPolicy,
		ReviewStatus:    string(job.ReviewStatus),
	}
}
