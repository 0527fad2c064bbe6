package entity

import (
	"encoding/json"
	"time"
)

type TaskName string

const TaskProcessDocument TaskName = "process_document"

type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of queued work.
type Task struct {
	ID        string          `json:"id"`
	Name      TaskName        `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ProcessDocumentPayload struct {
	JobID     string `json:"job_id"`
	FileKey   string `json:"file_key"`
	Language  string `json:"language"`
	OCREngine string `json:"ocr_engine"`
}
