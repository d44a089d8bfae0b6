package authhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/organization"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
	Logout(ctx context.Context, user auth.UserContext) error
	CurrentUser(ctx context.Context, userID string) (auth.AuthUser, error)
}

type ProfileSource interface {
	OrgProfile(ctx context.Context, user auth.UserContext, tenant *access.TenantContext) (access.Profile, error)
	PlatformProfile(ctx context.Context, user auth.UserContext) (access.Profile, error)
	ForgetUser(userID string)
}

type OrganizationGetter interface {
	Get(ctx context.Context, id string) (organization.Organization, error)
}

type Handler struct {
	Auth     Authenticator
	Profiles ProfileSource
	Orgs     OrganizationGetter
	now      func() time.Time
}

func NewHandler(authn Authenticator, profiles ProfileSource, orgs OrganizationGetter) *Handler {
	return &Handler{Auth: authn, Profiles: profiles, Orgs: orgs, now: time.Now}
}

// RegisterRoutes mounts /auth. Login is public; the rest requires a token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", h.HandleLogout)
		r.Get("/me", h.HandleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"fullName"`
	OrganizationID string `json:"organizationId,omitempty"`
	RoleID         string `json:"roleId,omitempty"`
	IsSuperAdmin   bool   `json:"isSuperAdmin"`
}

func newUserView(user auth.AuthUser) userView {
	return userView{
		ID:             user.ID,
		Email:          user.Email,
		FullName:       user.FullName,
		OrganizationID: user.OrganizationID,
		RoleID:         user.RoleID,
		IsSuperAdmin:   user.IsSuperAdmin,
	}
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "email is required")
	v.Required("password", payload.Password, "password is required")
	if v.Reject(w, requestID) {
		return
	}

	result, err := h.Auth.Login(r.Context(), strings.TrimSpace(payload.Email), payload.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
		return
	}
	if err != nil {
		slog.Error("login failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "login_failed", "failed to sign in", requestID)
		return
	}

	api.Success(w, map[string]any{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.UTC(),
		"user":      newUserView(result.User),
	}, requestID)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if err := h.Auth.Logout(r.Context(), user); err != nil {
		slog.Warn("logout failed", "userId", user.UserID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "logout_failed", "failed to sign out", middleware.GetRequestID(r.Context()))
		return
	}
	h.Profiles.ForgetUser(user.UserID)
	api.SuccessMessage(w, nil, "signed out", middleware.GetRequestID(r.Context()))
}

// HandleMe returns the caller with the permission matrix of their home scope:
// the platform profile for super admins, the organization profile otherwise.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	claims, _ := middleware.GetUser(r.Context())

	user, err := h.Auth.CurrentUser(r.Context(), claims.UserID)
	if shared.IsNotFound(err) {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	if err != nil {
		shared.StoreError(w, r, err, "user", "user_lookup_failed")
		return
	}

	body := map[string]any{"user": newUserView(user)}

	if claims.IsSuperAdmin {
		profile, err := h.Profiles.PlatformProfile(r.Context(), claims)
		if err != nil {
			shared.AccessError(w, r, err)
			return
		}
		body["permissions"] = profile.Permissions
		api.Success(w, body, requestID)
		return
	}

	org, err := h.Orgs.Get(r.Context(), claims.OrganizationID)
	if err != nil {
		shared.StoreError(w, r, err, "organization", "organization_lookup_failed")
		return
	}
	body["organization"] = map[string]any{"id": org.ID, "name": org.Name, "slug": org.Slug, "status": org.Status}

	// A blocked organization still reports who the caller is, with no permissions.
	if err := access.CheckOrganization(org, h.now()); err != nil {
		denial, _ := access.AsDenial(err)
		body["permissions"] = []access.Permission{}
		if denial != nil {
			body["organizationBlocked"] = denial.Code
		}
		api.Success(w, body, requestID)
		return
	}

	tenant := access.TenantContext{Organization: org, OrganizationID: org.ID}
	profile, err := h.Profiles.OrgProfile(r.Context(), claims, &tenant)
	if err != nil {
		shared.AccessError(w, r, err)
		return
	}
	body["permissions"] = profile.Permissions
	api.Success(w, body, requestID)
}
