package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditStatus string

const (
	AuditSuccess      AuditStatus = "success"
	AuditFailed       AuditStatus = "failed"
	AuditWarning      AuditStatus = "warning"
	AuditUnauthorized AuditStatus = "unauthorized"
)

// Audit action types written by the service.
const (
	ActionUpload         = "upload"
	ActionViewResults    = "view_results"
	ActionManualReview   = "manual_review"
	ActionDeleteJob      = "delete_job"
	ActionCleanupExpired = "cleanup_expired_jobs"
	ActionCleanupAudit   = "cleanup_audit_logs"
	ActionCleanupOrphans = "cleanup_orphaned_files"
	ActionAdminCleanup   = "admin_cleanup"
	ActionAdminAccess    = "admin_access"
	ActionExportAudit    = "export_audit_logs"
)

type AuditLog struct {
	ID           uuid.UUID       `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	UserID       *string         `json:"user_id,omitempty"`
	UserIP       string          `json:"user_ip"`
	ActionType   string          `json:"action_type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	Status       AuditStatus     `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
