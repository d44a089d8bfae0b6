package platformhandler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type OrganizationStore interface {
	List(ctx context.Context) ([]organization.Organization, error)
	Get(ctx context.Context, id string) (organization.Organization, error)
	Create(ctx context.Context, org organization.Organization) (string, error)
	Update(ctx context.Context, id string, org organization.Organization) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	ModuleStates(ctx context.Context, id string) ([]organization.ModuleState, error)
	SetModuleEnabled(ctx context.Context, id, code string, enabled bool) error
}

// Handler administers tenants and the module catalog.
type Handler struct {
	Orgs     OrganizationStore
	Registry *modules.Registry
	Cache    *access.ProfileCache
	Audit    audit.Recorder
	Guard    middleware.Guard
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.Guard(modules.PlatformModules, access.ActionRead)).Get("/modules", h.handleCatalog)
	r.Route("/organizations", func(r chi.Router) {
		r.With(h.Guard(modules.Organizations, access.ActionRead)).Get("/", h.handleList)
		r.With(h.Guard(modules.Organizations, access.ActionWrite)).Post("/", h.handleCreate)
		r.Route("/{orgID}", func(r chi.Router) {
			r.With(h.Guard(modules.Organizations, access.ActionRead)).Get("/", h.handleGet)
			r.With(h.Guard(modules.Organizations, access.ActionUpdate)).Put("/", h.handleUpdate)
			r.With(h.Guard(modules.Organizations, access.ActionDelete)).Delete("/", h.handleDelete)
			r.With(h.Guard(modules.Organizations, access.ActionRead)).Get("/modules", h.handleModuleStates)
			r.With(h.Guard(modules.Organizations, access.ActionUpdate)).Put("/modules/{code}", h.handleToggleModule)
		})
	})
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Registry.All(), middleware.GetRequestID(r.Context()))
}

type organizationPayload struct {
	Name                   string   `json:"name"`
	Slug                   string   `json:"slug"`
	Email                  string   `json:"email"`
	Phone                  string   `json:"phone"`
	Address                string   `json:"address"`
	IsActive               *bool    `json:"isActive"`
	Status                 string   `json:"status"`
	SubscriptionPlan       string   `json:"subscriptionPlan"`
	SubscriptionExpiryDate string   `json:"subscriptionExpiryDate"`
	Modules                []string `json:"modules"`
}

// organization validates the payload. Slug rules apply only on create since
// slugs never change afterwards.
func (h *Handler) organization(w http.ResponseWriter, r *http.Request, p organizationPayload, creating bool) (organization.Organization, []modules.Code, bool) {
	org := organization.Organization{
		Name:             strings.TrimSpace(p.Name),
		Slug:             organization.NormalizeSlug(p.Slug),
		Email:            strings.TrimSpace(p.Email),
		Phone:            strings.TrimSpace(p.Phone),
		Address:          strings.TrimSpace(p.Address),
		IsActive:         p.IsActive == nil || *p.IsActive,
		Status:           organization.Status(strings.ToLower(strings.TrimSpace(p.Status))),
		SubscriptionPlan: strings.TrimSpace(p.SubscriptionPlan),
	}
	if org.Status == "" {
		org.Status = organization.StatusActive
	}

	v := shared.NewValidator()
	v.Required("name", org.Name, "is required")
	if creating {
		switch {
		case !organization.ValidSlug(org.Slug):
			v.Add("slug", "must be 2-63 lower case letters, digits or single dashes")
		case organization.ReservedSlug(org.Slug):
			v.Add("slug", "is reserved")
		}
	}
	if !org.Status.Valid() {
		v.Add("status", "must be one of active, suspended, expired")
	}
	if raw := strings.TrimSpace(p.SubscriptionExpiryDate); raw != "" {
		if expiry, ok := v.Date("subscriptionExpiryDate", raw); ok {
			expiry = expiry.UTC()
			org.SubscriptionExpiryDate = &expiry
		}
	}
	var enable []modules.Code
	for _, raw := range p.Modules {
		mod, err := h.Registry.Lookup(raw)
		if err != nil || mod.Scope != modules.ScopeOrg {
			v.Add("modules", "unknown organization module "+strings.TrimSpace(raw)+"; expected one of "+h.orgModuleList())
			continue
		}
		if !mod.Core {
			enable = append(enable, mod.Code)
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return organization.Organization{}, nil, false
	}
	return org, enable, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.Orgs.List(r.Context())
	if err != nil {
		shared.StoreError(w, r, err, "organization", "organization_list_failed")
		return
	}
	if orgs == nil {
		orgs = []organization.Organization{}
	}
	api.Success(w, orgs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	org, err := h.Orgs.Get(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		shared.StoreError(w, r, err, "organization", "organization_fetch_failed")
		return
	}
	api.Success(w, org, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload organizationPayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	org, enable, ok := h.organization(w, r, payload, true)
	if !ok {
		return
	}
	id, err := h.Orgs.Create(r.Context(), org)
	if err != nil {
		shared.StoreError(w, r, err, "organization", "organization_create_failed")
		return
	}
	for _, code := range enable {
		if err := h.Orgs.SetModuleEnabled(r.Context(), id, string(code), true); err != nil {
			shared.StoreError(w, r, err, "organization", "organization_create_failed")
			return
		}
	}
	org.ID = id
	shared.Audit(r, h.Audit, "organization.create", "organization", id, nil, map[string]any{"organization": org, "modules": enable})
	api.Created(w, map[string]string{"id": id, "slug": org.Slug}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	var payload organizationPayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	org, _, ok := h.organization(w, r, payload, false)
	if !ok {
		return
	}
	before, err := h.Orgs.Get(r.Context(), orgID)
	if err != nil {
		shared.StoreError(w, r, err, "organization", "organization_update_failed")
		return
	}
	updated, err := h.Orgs.Update(r.Context(), orgID, org)
	if err != nil {
		shared.StoreError(w, r, err, "organization", "organization_update_failed")
		return
	}
	if !updated {
		api.Fail(w, http.StatusNotFound, "not_found", "organization not found", middleware.GetRequestID(r.Context()))
		return
	}
	org.ID = orgID
	org.Slug = before.Slug
	h.Cache.InvalidateOrganization(orgID)
	shared.Audit(r, h.Audit, "organization.update", "organization", orgID, before, org)
	api.Success(w, org, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	deleted, err := h.Orgs.Delete(r.Context(), orgID)
	if err != nil {
		shared.StoreError(w, r, err, "organization", "organization_delete_failed")
		return
	}
	if !deleted {
		api.Fail(w, http.StatusNotFound, "not_found", "organization not found", middleware.GetRequestID(r.Context()))
		return
	}
	h.Cache.InvalidateOrganization(orgID)
	shared.Audit(r, h.Audit, "organization.delete", "organization", orgID, nil, nil)
	api.SuccessMessage(w, map[string]string{"id": orgID}, "organization deleted", middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleModuleStates(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if _, err := h.Orgs.Get(r.Context(), orgID); err != nil {
		shared.StoreError(w, r, err, "organization", "organization_modules_failed")
		return
	}
	states, err := h.Orgs.ModuleStates(r.Context(), orgID)
	if err != nil {
		shared.StoreError(w, r, err, "organization", "organization_modules_failed")
		return
	}
	if states == nil {
		states = []organization.ModuleState{}
	}
	api.Success(w, states, middleware.GetRequestID(r.Context()))
}

// handleToggleModule enables or disables a non-core module. Core modules are
// always on and cannot be toggled.
func (h *Handler) handleToggleModule(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	orgID := chi.URLParam(r, "orgID")

	mod, err := h.Registry.Lookup(chi.URLParam(r, "code"))
	if err != nil || mod.Scope != modules.ScopeOrg {
		api.Fail(w, http.StatusNotFound, access.ErrModuleNotFound.Code, access.ErrModuleNotFound.Message, requestID)
		return
	}
	if mod.Core {
		api.Fail(w, http.StatusBadRequest, "module_core", "core modules are always enabled", requestID)
		return
	}

	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	if payload.Enabled == nil {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "enabled", Reason: "is required"}})
		return
	}
	if _, err := h.Orgs.Get(r.Context(), orgID); err != nil {
		shared.StoreError(w, r, err, "organization", "module_toggle_failed")
		return
	}
	if err := h.Orgs.SetModuleEnabled(r.Context(), orgID, string(mod.Code), *payload.Enabled); err != nil {
		shared.StoreError(w, r, err, "organization", "module_toggle_failed")
		return
	}
	h.Cache.InvalidateOrganization(orgID)

	action := "organization.module.disable"
	if *payload.Enabled {
		action = "organization.module.enable"
	}
	shared.Audit(r, h.Audit, action, "organization", orgID, nil, map[string]any{
		"module":  mod.Code,
		"enabled": *payload.Enabled,
	})
	api.Success(w, organization.ModuleState{Code: string(mod.Code), Name: mod.Name, IsCore: mod.Core, Enabled: *payload.Enabled}, requestID)
}

func (h *Handler) orgModuleList() string {
	codes := h.Registry.Codes(modules.ScopeOrg)
	names := make([]string, len(codes))
	for i, code := range codes {
		names[i] = string(code)
	}
	return strings.Join(names, ", ")
}
