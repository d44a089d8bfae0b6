package shared

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/core"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
)

func ClientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if value := strings.TrimSpace(first); value != "" {
			return value
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// DecodeJSON reads the body into dst and answers 400 on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request payload too large", middleware.GetRequestID(r.Context()))
			return false
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsInvalidText reports a value Postgres could not cast, such as a malformed
// uuid.
func IsInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// StoreError answers a failed store call: missing rows become 404, unique
// violations 409, everything else is logged and reported as 500.
func StoreError(w http.ResponseWriter, r *http.Request, err error, entity, failCode string) {
	requestID := middleware.GetRequestID(r.Context())
	var refErr *core.ReferenceError
	switch {
	case errors.As(err, &refErr):
		FailValidation(w, requestID, []ValidationIssue{{Field: refErr.Field, Reason: "must reference a record of this organization"}})
	case IsNotFound(err):
		api.Fail(w, http.StatusNotFound, "not_found", entity+" not found", requestID)
	case IsUniqueViolation(err):
		api.Fail(w, http.StatusConflict, entity+"_exists", entity+" already exists", requestID)
	case IsForeignKeyViolation(err):
		api.Fail(w, http.StatusBadRequest, "invalid_reference", "referenced record does not exist", requestID)
	case IsInvalidText(err):
		api.Fail(w, http.StatusBadRequest, "invalid_identifier", "malformed identifier", requestID)
	default:
		slog.Error("store call failed", "entity", entity, "code", failCode, "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, failCode, "failed to process "+entity, requestID)
	}
}

// Audit records a mutation made by the current caller. Failures are logged,
// never surfaced.
func Audit(r *http.Request, rec audit.Recorder, action, entityType, entityID string, before, after any) {
	if rec == nil {
		return
	}
	entry := audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         ClientIP(r),
		Before:     before,
		After:      after,
	}
	if user, ok := middleware.GetUser(r.Context()); ok {
		entry.ActorID = user.UserID
		if !user.IsSuperAdmin {
			entry.OrganizationID = user.OrganizationID
		}
	}
	if tenant, ok := middleware.GetTenant(r.Context()); ok {
		entry.OrganizationID = tenant.OrganizationID
		entry.IsImpersonating = tenant.IsImpersonating
	}
	if err := rec.Record(r.Context(), entry); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err, "requestId", entry.RequestID)
	}
}

// AccessError answers a policy denial with its own status and anything else
// with 500.
func AccessError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	if denial, ok := access.AsDenial(err); ok {
		api.Fail(w, denial.Status, denial.Code, denial.Message, requestID)
		return
	}
	slog.Error("permission profile failed", "err", err, "requestId", requestID)
	api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", requestID)
}
