package audithandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/modules"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type EventReader interface {
	Count(ctx context.Context, organizationID string, filter audit.Filter) (int, error)
	List(ctx context.Context, organizationID string, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error)
}

// Handler lists audit events of the current organization, or platform events
// when mounted on a platform route.
type Handler struct {
	Events EventReader
	Guard  middleware.Guard
	Module modules.Code
}

func NewHandler(events EventReader, guard middleware.Guard, module modules.Code) *Handler {
	return &Handler{Events: events, Guard: guard, Module: module}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.Guard(h.Module, access.ActionRead)).Get("/", h.handleListEvents)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	organizationID := middleware.OrganizationID(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	v := shared.NewValidator()
	query := shared.ParseListQuery(r, v, 100, 500)
	filter := audit.Filter{
		Action:        query.String("action"),
		EntityType:    query.String("entityType"),
		ActorUser:     query.String("actorUserId"),
		Impersonating: query.Bool(v, "impersonating"),
	}
	v.ID("actorUserId", filter.ActorUser)
	if v.Reject(w, requestID) {
		return
	}
	includeDetails := query.Flag("includeDetails")

	total, err := h.Events.Count(r.Context(), organizationID, filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err)
	}

	events, err := h.Events.List(r.Context(), organizationID, filter, includeDetails, query.Limit, query.Offset)
	if err != nil {
		slog.Error("audit list failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", requestID)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, events, requestID)
}
