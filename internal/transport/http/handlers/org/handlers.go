package orghandler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/core"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
	"hradmin/internal/transport/http/api"
	audithandler "hradmin/internal/transport/http/handlers/audit"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type OrganizationStore interface {
	Get(ctx context.Context, id string) (organization.Organization, error)
	UpdateProfile(ctx context.Context, id string, org organization.Organization) (bool, error)
	ModuleStates(ctx context.Context, id string) ([]organization.ModuleState, error)
}

type ProfileSource interface {
	OrgProfile(ctx context.Context, user auth.UserContext, tenant *access.TenantContext) (access.Profile, error)
}

type SummarySource interface {
	Summary(ctx context.Context, organizationID string) (core.Summary, error)
}

// Handler serves the organization's own profile, dashboard and the caller's
// permission profile.
type Handler struct {
	Orgs     OrganizationStore
	Profiles ProfileSource
	Summary  SummarySource
	Events   audithandler.EventReader
	Audit    audit.Recorder
	Guard    middleware.Guard
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me/permissions", h.handleMyPermissions)
	r.With(h.Guard(modules.Dashboard, access.ActionRead)).Get("/dashboard", h.handleDashboard)
	r.Route("/settings", func(r chi.Router) {
		r.With(h.Guard(modules.Settings, access.ActionRead)).Get("/", h.handleGetSettings)
		r.With(h.Guard(modules.Settings, access.ActionUpdate)).Put("/", h.handleUpdateSettings)
		r.With(h.Guard(modules.Settings, access.ActionRead)).Get("/modules", h.handleModules)
		r.Route("/audit", audithandler.NewHandler(h.Events, h.Guard, modules.Settings).RegisterRoutes)
	})
}

// handleMyPermissions returns the caller's profile. ?action=approve narrows it
// to the modules where that action is granted.
func (h *Handler) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	var filter access.Action
	if raw := r.URL.Query().Get("action"); raw != "" {
		action, err := access.ParseAction(raw)
		if err != nil {
			shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{
				{Field: "action", Reason: "must be one of read, write, update, delete, approve, export, any"},
			})
			return
		}
		filter = action
	}
	tenant, _ := middleware.GetTenant(r.Context())
	profile, err := h.Profiles.OrgProfile(r.Context(), user, tenant)
	if err != nil {
		shared.AccessError(w, r, err)
		return
	}
	if filter != "" {
		profile.Permissions = profile.Granting(filter)
	}
	api.Success(w, profile, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	organizationID := middleware.OrganizationID(r.Context())
	summary, err := h.Summary.Summary(r.Context(), organizationID)
	if err != nil {
		shared.StoreError(w, r, err, "dashboard", "dashboard_failed")
		return
	}
	states, err := h.Orgs.ModuleStates(r.Context(), organizationID)
	if err != nil {
		shared.StoreError(w, r, err, "dashboard", "dashboard_failed")
		return
	}
	enabled := make([]string, 0, len(states))
	for _, st := range states {
		if st.Enabled {
			enabled = append(enabled, st.Code)
		}
	}
	api.Success(w, map[string]any{
		"summary":        summary,
		"enabledModules": enabled,
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	org, err := h.Orgs.Get(r.Context(), middleware.OrganizationID(r.Context()))
	if err != nil {
		shared.StoreError(w, r, err, "organization", "settings_fetch_failed")
		return
	}
	api.Success(w, org, middleware.GetRequestID(r.Context()))
}

type profilePayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload profilePayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Email = strings.TrimSpace(payload.Email)

	v := shared.NewValidator()
	v.Required("name", payload.Name, "is required")
	v.Email("email", payload.Email)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	organizationID := middleware.OrganizationID(r.Context())
	before, err := h.Orgs.Get(r.Context(), organizationID)
	if err != nil {
		shared.StoreError(w, r, err, "organization", "settings_update_failed")
		return
	}
	after := before
	after.Name = payload.Name
	after.Email = payload.Email
	after.Phone = strings.TrimSpace(payload.Phone)
	after.Address = strings.TrimSpace(payload.Address)

	ok, err := h.Orgs.UpdateProfile(r.Context(), organizationID, after)
	if err != nil {
		shared.StoreError(w, r, err, "organization", "settings_update_failed")
		return
	}
	if !ok {
		api.Fail(w, http.StatusNotFound, "not_found", "organization not found", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, "organization.profile.update", "organization", organizationID, before, after)
	api.SuccessMessage(w, after, "settings updated", middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleModules(w http.ResponseWriter, r *http.Request) {
	states, err := h.Orgs.ModuleStates(r.Context(), middleware.OrganizationID(r.Context()))
	if err != nil {
		shared.StoreError(w, r, err, "organization", "modules_fetch_failed")
		return
	}
	if states == nil {
		states = []organization.ModuleState{}
	}
	api.Success(w, states, middleware.GetRequestID(r.Context()))
}
