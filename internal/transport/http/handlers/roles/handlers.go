package roleshandler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/roles"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type RoleService interface {
	List(ctx context.Context, organizationID string) ([]roles.Role, error)
	Get(ctx context.Context, organizationID, roleID string) (roles.Role, error)
	Create(ctx context.Context, organizationID string, role roles.Role) (string, error)
	Update(ctx context.Context, organizationID, roleID string, role roles.Role) (bool, error)
	Delete(ctx context.Context, organizationID, roleID string) (bool, error)
	Matrix(ctx context.Context, organizationID, roleID string) (roles.Role, []access.Permission, error)
	SetMatrix(ctx context.Context, organizationID, roleID string, perms []access.Permission) ([]access.Permission, error)
	MatrixPDF(ctx context.Context, organizationID, roleID string) ([]byte, roles.Role, error)
}

// Handler serves the roles of the current organization. Mounted under a
// platform route it serves platform roles instead.
type Handler struct {
	Roles  RoleService
	Audit  audit.Recorder
	Guard  middleware.Guard
	Module modules.Code
}

func NewHandler(svc RoleService, rec audit.Recorder, guard middleware.Guard, module modules.Code) *Handler {
	return &Handler{Roles: svc, Audit: rec, Guard: guard, Module: module}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.Guard(h.Module, access.ActionRead)).Get("/", h.handleList)
	r.With(h.Guard(h.Module, access.ActionWrite)).Post("/", h.handleCreate)
	r.Route("/{roleID}", func(r chi.Router) {
		r.With(h.Guard(h.Module, access.ActionRead)).Get("/", h.handleGet)
		r.With(h.Guard(h.Module, access.ActionUpdate)).Put("/", h.handleUpdate)
		r.With(h.Guard(h.Module, access.ActionDelete)).Delete("/", h.handleDelete)
		r.With(h.Guard(h.Module, access.ActionRead)).Get("/permissions", h.handleGetPermissions)
		r.With(h.Guard(h.Module, access.ActionUpdate)).Put("/permissions", h.handleSetPermissions)
		r.With(h.Guard(h.Module, access.ActionExport)).Get("/permissions.pdf", h.handleExportPermissions)
	})
}

type rolePayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type matrixResponse struct {
	Role        roles.Role          `json:"role"`
	Permissions []access.Permission `json:"permissions"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.Roles.List(r.Context(), middleware.OrganizationID(r.Context()))
	if err != nil {
		shared.StoreError(w, r, err, "role", "role_list_failed")
		return
	}
	if list == nil {
		list = []roles.Role{}
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	role, err := h.Roles.Get(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "roleID"))
	if err != nil {
		shared.StoreError(w, r, err, "role", "role_fetch_failed")
		return
	}
	api.Success(w, role, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	organizationID := middleware.OrganizationID(r.Context())
	role := roles.Role{OrganizationID: organizationID, Name: payload.Name, Description: payload.Description}
	id, err := h.Roles.Create(r.Context(), organizationID, role)
	if err != nil {
		h.fail(w, r, err, "role_create_failed")
		return
	}
	role.ID = id
	shared.Audit(r, h.Audit, "role.create", "role", id, nil, role)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	organizationID := middleware.OrganizationID(r.Context())
	roleID := chi.URLParam(r, "roleID")
	before, err := h.Roles.Get(r.Context(), organizationID, roleID)
	if err != nil {
		shared.StoreError(w, r, err, "role", "role_update_failed")
		return
	}
	after := roles.Role{ID: roleID, OrganizationID: organizationID, Name: payload.Name, Description: payload.Description}
	ok, err := h.Roles.Update(r.Context(), organizationID, roleID, after)
	if err != nil {
		h.fail(w, r, err, "role_update_failed")
		return
	}
	if !ok {
		api.Fail(w, http.StatusNotFound, "not_found", "role not found", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, "role.update", "role", roleID, before, after)
	api.SuccessMessage(w, map[string]string{"id": roleID}, "role updated", middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	organizationID := middleware.OrganizationID(r.Context())
	roleID := chi.URLParam(r, "roleID")
	ok, err := h.Roles.Delete(r.Context(), organizationID, roleID)
	if err != nil {
		h.fail(w, r, err, "role_delete_failed")
		return
	}
	if !ok {
		api.Fail(w, http.StatusNotFound, "not_found", "role not found", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, "role.delete", "role", roleID, nil, nil)
	api.SuccessMessage(w, map[string]string{"id": roleID}, "role deleted", middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetPermissions(w http.ResponseWriter, r *http.Request) {
	role, perms, err := h.Roles.Matrix(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "roleID"))
	if err != nil {
		shared.StoreError(w, r, err, "role", "role_permissions_failed")
		return
	}
	api.Success(w, matrixResponse{Role: role, Permissions: perms}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetPermissions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Permissions []access.Permission `json:"permissions"`
	}
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	organizationID := middleware.OrganizationID(r.Context())
	roleID := chi.URLParam(r, "roleID")

	_, before, err := h.Roles.Matrix(r.Context(), organizationID, roleID)
	if err != nil {
		shared.StoreError(w, r, err, "role", "role_permissions_failed")
		return
	}
	stored, err := h.Roles.SetMatrix(r.Context(), organizationID, roleID, payload.Permissions)
	if err != nil {
		h.fail(w, r, err, "role_permissions_failed")
		return
	}
	shared.Audit(r, h.Audit, "role.permissions.update", "role", roleID, before, stored)
	api.SuccessMessage(w, stored, "permissions updated", middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportPermissions(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleID")
	data, role, err := h.Roles.MatrixPDF(r.Context(), middleware.OrganizationID(r.Context()), roleID)
	if err != nil {
		shared.StoreError(w, r, err, "role", "role_export_failed")
		return
	}
	shared.Audit(r, h.Audit, "role.permissions.export", "role", roleID, nil, nil)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+fileName(role.Name)+`-permissions.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, failCode string) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, roles.ErrNameRequired):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "name", Reason: "is required"}})
	case errors.Is(err, roles.ErrRoleInUse):
		api.Fail(w, http.StatusConflict, "role_in_use", "role is assigned to users", requestID)
	case errors.Is(err, access.ErrInvalidMatrix):
		api.Fail(w, http.StatusBadRequest, "invalid_permissions", err.Error(), requestID)
	default:
		shared.StoreError(w, r, err, "role", failCode)
	}
}

func fileName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name)
	out = strings.Trim(out, "-")
	if out == "" {
		return "role"
	}
	return out
}
