package leavehandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/leave"
	"hradmin/internal/domain/modules"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type TypeStore interface {
	ListTypes(ctx context.Context, organizationID string) ([]leave.LeaveType, error)
	GetType(ctx context.Context, organizationID, id string) (leave.LeaveType, error)
	CreateType(ctx context.Context, organizationID string, t leave.LeaveType) (string, error)
	UpdateType(ctx context.Context, organizationID, id string, t leave.LeaveType) (bool, error)
	DeleteType(ctx context.Context, organizationID, id string) (bool, error)
}

type Handler struct {
	Types TypeStore
	Audit audit.Recorder
	Guard middleware.Guard
}

func NewHandler(types TypeStore, rec audit.Recorder, guard middleware.Guard) *Handler {
	return &Handler{Types: types, Audit: rec, Guard: guard}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/types", func(r chi.Router) {
		r.With(h.Guard(modules.Leave, access.ActionRead)).Get("/", h.handleListTypes)
		r.With(h.Guard(modules.Leave, access.ActionWrite)).Post("/", h.handleCreateType)
		r.With(h.Guard(modules.Leave, access.ActionRead)).Get("/{typeID}", h.handleGetType)
		r.With(h.Guard(modules.Leave, access.ActionUpdate)).Put("/{typeID}", h.handleUpdateType)
		r.With(h.Guard(modules.Leave, access.ActionDelete)).Delete("/{typeID}", h.handleDeleteType)
	})
}

type typePayload struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	DaysPerYear float64 `json:"daysPerYear"`
	IsPaid      *bool   `json:"isPaid"`
}

func (p typePayload) leaveType(w http.ResponseWriter, r *http.Request) (leave.LeaveType, bool) {
	t := leave.LeaveType{Name: p.Name, Code: p.Code, DaysPerYear: p.DaysPerYear, IsPaid: p.IsPaid == nil || *p.IsPaid}
	if err := t.Normalize(); err != nil {
		field := "name"
		switch {
		case errors.Is(err, leave.ErrCodeRequired):
			field = "code"
		case errors.Is(err, leave.ErrInvalidDays):
			field = "daysPerYear"
		}
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: field, Reason: err.Error()}})
		return leave.LeaveType{}, false
	}
	return t, true
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Types.ListTypes(r.Context(), middleware.OrganizationID(r.Context()))
	if err != nil {
		shared.StoreError(w, r, err, "leave_type", "leave_type_list_failed")
		return
	}
	if types == nil {
		types = []leave.LeaveType{}
	}
	api.Success(w, types, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetType(w http.ResponseWriter, r *http.Request) {
	t, err := h.Types.GetType(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "typeID"))
	if err != nil {
		shared.StoreError(w, r, err, "leave_type", "leave_type_fetch_failed")
		return
	}
	api.Success(w, t, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var payload typePayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	t, ok := payload.leaveType(w, r)
	if !ok {
		return
	}
	id, err := h.Types.CreateType(r.Context(), middleware.OrganizationID(r.Context()), t)
	if err != nil {
		shared.StoreError(w, r, err, "leave_type", "leave_type_create_failed")
		return
	}
	t.ID = id
	shared.Audit(r, h.Audit, "leave.type.create", "leave_type", id, nil, t)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	organizationID := middleware.OrganizationID(r.Context())
	typeID := chi.URLParam(r, "typeID")
	var payload typePayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	t, ok := payload.leaveType(w, r)
	if !ok {
		return
	}
	before, err := h.Types.GetType(r.Context(), organizationID, typeID)
	if err != nil {
		shared.StoreError(w, r, err, "leave_type", "leave_type_update_failed")
		return
	}
	updated, err := h.Types.UpdateType(r.Context(), organizationID, typeID, t)
	if err != nil {
		shared.StoreError(w, r, err, "leave_type", "leave_type_update_failed")
		return
	}
	if !updated {
		api.Fail(w, http.StatusNotFound, "not_found", "leave_type not found", middleware.GetRequestID(r.Context()))
		return
	}
	t.ID = typeID
	shared.Audit(r, h.Audit, "leave.type.update", "leave_type", typeID, before, t)
	api.Success(w, map[string]string{"id": typeID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "typeID")
	deleted, err := h.Types.DeleteType(r.Context(), middleware.OrganizationID(r.Context()), typeID)
	if err != nil {
		shared.StoreError(w, r, err, "leave_type", "leave_type_delete_failed")
		return
	}
	if !deleted {
		api.Fail(w, http.StatusNotFound, "not_found", "leave_type not found", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, "leave.type.delete", "leave_type", typeID, nil, nil)
	api.SuccessMessage(w, map[string]string{"id": typeID}, "leave type deleted", middleware.GetRequestID(r.Context()))
}
