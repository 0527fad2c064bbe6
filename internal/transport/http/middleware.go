package httptransport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"doc-intake-service/internal/audit"
	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(sw, r)

			log.Info("http request",
				"req_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// AdminClaims is the token shape accepted on admin routes.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type adminKey struct{}

// AdminSubject returns the subject of the verified admin token, if any.
func AdminSubject(ctx context.Context) string {
	s, _ := ctx.Value(adminKey{}).(string)
	return s
}

var (
	errMissingToken = errors.New("missing bearer token")
	errNotAdmin     = errors.New("admin role required")
	errNoSecret     = errors.New("admin access is not configured")
)

// AdminAuth requires an HS256 bearer token carrying role=admin. Every
// rejection is answered with 401 and recorded as an unauthorized access.
func AdminAuth(secret string, rec AuditRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, err := verifyAdmin(secret, r.Header.Get("Authorization"))
			if err != nil {
				rec.LogAction(r.Context(), audit.Action{
					Type:         entity.ActionAdminAccess,
					ResourceType: "admin",
					ResourceID:   r.URL.Path,
					Status:       entity.AuditUnauthorized,
					ErrorMessage: err.Error(),
					Request:      r,
				})
				writeErr(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, sub)))
		})
	}
}

func verifyAdmin(secret, header string) (string, error) {
	if secret == "" {
		return "", errNoSecret
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errMissingToken
	}

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	if claims.Role != "admin" {
		return "", errNotAdmin
	}
	return claims.Subject, nil
}
