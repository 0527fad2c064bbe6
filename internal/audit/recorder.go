// Package audit writes the append-only trail of state-changing actions.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
	"doc-intake-service/internal/security"
)

const (
	maxIPLength    = 45
	maxTypeLength  = 50
	maxIDLength    = 255
	maxErrorLength = 1000
	unknownAddress = "unknown"
)

type Store interface {
	Insert(ctx context.Context, e *entity.AuditLog) error
}

// Action describes one auditable event. Empty Status means success.
type Action struct {
	Type         string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	Status       entity.AuditStatus
	ErrorMessage string
	ActorIP      string
	UserID       string
	Request      *http.Request
}

type Recorder struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewRecorder(store Store, log *logger.Logger) *Recorder {
	return &Recorder{store: store, log: log.With("component", "audit"), now: time.Now}
}

// LogAction sanitizes and stores a. Failures are logged and nil is returned;
// callers never see an audit error.
func (r *Recorder) LogAction(ctx context.Context, a Action) *entity.AuditLog {
	status := a.Status
	if status == "" {
		status = entity.AuditSuccess
	}

	e := &entity.AuditLog{
		Timestamp:    r.now().UTC(),
		UserIP:       ClientIP(a.ActorIP, a.Request),
		ActionType:   security.SanitizeInput(a.Type, maxTypeLength),
		ResourceType: security.SanitizeInput(a.ResourceType, maxTypeLength),
		ResourceID:   optional(security.SanitizeInput(a.ResourceID, maxIDLength)),
		UserID:       optional(security.SanitizeInput(a.UserID, maxIDLength)),
		Status:       status,
		ErrorMessage: optional(security.SanitizeInput(security.MaskAll(a.ErrorMessage), maxErrorLength)),
		Details:      r.details(a.Details),
	}

	if err := r.store.Insert(ctx, e); err != nil {
		r.log.Error("audit insert failed", "action", e.ActionType, "resource_id", a.ResourceID, "error", err)
		return nil
	}
	return e
}

func (r *Recorder) details(d map[string]any) json.RawMessage {
	if len(d) == 0 {
		return nil
	}
	clean, err := security.MinimizeDetails(d)
	if errors.Is(err, security.ErrInputTooLarge) {
		size := 0
		if b, mErr := json.Marshal(d); mErr == nil {
			size = len(b)
		}
		clean = map[string]any{"_truncated": true, "_original_size": size}
	} else if err != nil {
		r.log.Warn("audit details dropped", "error", err)
		return nil
	}
	b, err := json.Marshal(clean)
	if err != nil {
		r.log.Warn("audit details not serializable", "error", err)
		return nil
	}
	return b
}

// ClientIP resolves the actor address: explicit value, then the first
// X-Forwarded-For hop, then X-Real-IP, then the connection address.
func ClientIP(explicit string, req *http.Request) string {
	if ip := strings.TrimSpace(explicit); ip != "" {
		return clip(ip)
	}
	if req == nil {
		return unknownAddress
	}
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return clip(first)
		}
	}
	if real := strings.TrimSpace(req.Header.Get("X-Real-IP")); real != "" {
		return clip(real)
	}
	if req.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			return clip(host)
		}
		return clip(req.RemoteAddr)
	}
	return unknownAddress
}

func clip(ip string) string {
	return security.SanitizeInput(ip, maxIPLength)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
