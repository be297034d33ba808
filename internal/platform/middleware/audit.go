package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicops/identity/internal/platform/auth"
)

// AuditEntry records who touched which patient identity endpoint and how it
// ended.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Action     string
	PatientID  string
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1/ request after the handler has run. Recorders, if
// given, receive the entry as well; a failing recorder is logged and does not
// affect the response.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()

			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Action:     auditAction(req.Method, req.URL.Path),
				PatientID:  c.Param("id"),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       req.URL.Path,
				Method:     req.Method,
				RequestID:  rid,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}

			logger.Info().
				Str("user_id", entry.UserID).
				Strs("roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("patient_id", entry.PatientID).
				Str("ip", entry.IPAddress).
				Str("request_id", entry.RequestID).
				Int("status", entry.StatusCode).
				Msg("identity_audit")

			for _, r := range recorders {
				if rerr := r.RecordAccess(entry); rerr != nil {
					logger.Error().Err(rerr).Str("request_id", rid).Msg("audit recorder failed")
				}
			}
			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

// auditAction names the operation behind a request path, e.g.
// "patient.match" or "duplicates.merge".
func auditAction(method, path string) string {
	rest := strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) >= 2 && parts[0] == "admin" && parts[1] == "duplicates":
		if len(parts) == 2 {
			return "duplicates.preview"
		}
		return "duplicates." + parts[2]
	case parts[0] == "patients":
		if len(parts) == 1 {
			if method == http.MethodPost {
				return "patient.create"
			}
			return "patient.list"
		}
		if strings.HasPrefix(parts[1], "$") {
			return "patient." + strings.TrimPrefix(parts[1], "$")
		}
		return "patient." + httpMethodToAction(method)
	}
	return httpMethodToAction(method)
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}
