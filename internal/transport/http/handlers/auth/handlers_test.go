package authhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
	"hradmin/internal/transport/http/middleware"
)

type fakeAuth struct {
	user      auth.AuthUser
	loginErr  error
	loggedOut []string
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (auth.LoginResult, error) {
	if f.loginErr != nil {
		return auth.LoginResult{}, f.loginErr
	}
	if email != f.user.Email || password != "Secret123" {
		return auth.LoginResult{}, auth.ErrInvalidCredentials
	}
	return auth.LoginResult{Token: "tok", ExpiresAt: time.Now().Add(time.Hour), User: f.user}, nil
}

func (f *fakeAuth) Logout(_ context.Context, user auth.UserContext) error {
	f.loggedOut = append(f.loggedOut, user.SessionID)
	return nil
}

func (f *fakeAuth) CurrentUser(_ context.Context, userID string) (auth.AuthUser, error) {
	if userID != f.user.ID {
		return auth.AuthUser{}, pgx.ErrNoRows
	}
	return f.user, nil
}

type fakeProfiles struct {
	orgCalls  int
	forgotten []string
}

func (f *fakeProfiles) ForgetUser(userID string) {
	f.forgotten = append(f.forgotten, userID)
}

func (f *fakeProfiles) OrgProfile(_ context.Context, _ auth.UserContext, tenant *access.TenantContext) (access.Profile, error) {
	f.orgCalls++
	return access.Profile{OrganizationID: tenant.OrganizationID, Permissions: []access.Permission{{ModuleCode: modules.Employees, CanRead: true}}}, nil
}

func (f *fakeProfiles) PlatformProfile(_ context.Context, user auth.UserContext) (access.Profile, error) {
	if !user.IsSuperAdmin {
		return access.Profile{}, access.ErrPlatformAccessRequired
	}
	return access.Profile{IsSuperAdmin: true, Permissions: []access.Permission{access.FullPermission(modules.Organizations)}}, nil
}

type fakeOrgs map[string]organization.Organization

func (f fakeOrgs) Get(_ context.Context, id string) (organization.Organization, error) {
	org, ok := f[id]
	if !ok {
		return organization.Organization{}, pgx.ErrNoRows
	}
	return org, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", h.RegisterRoutes)
	return r
}

func serve(t *testing.T, handler http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestLogin(t *testing.T) {
	authn := &fakeAuth{user: auth.AuthUser{ID: "u1", Email: "hr@acme.test", OrganizationID: "o1"}}
	router := newRouter(NewHandler(authn, &fakeProfiles{}, fakeOrgs{}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"hr@acme.test","password":"Secret123"}`))
	rec, env := serve(t, router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"token":"tok"`)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"hr@acme.test","password":"nope"}`))
	rec, env = serve(t, router, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", env.Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":""}`))
	rec, env = serve(t, router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestLoginBackendFailure(t *testing.T) {
	authn := &fakeAuth{loginErr: errors.New("db down")}
	router := newRouter(NewHandler(authn, &fakeProfiles{}, fakeOrgs{}))
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
	rec, _ := serve(t, router, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	router := newRouter(NewHandler(&fakeAuth{}, &fakeProfiles{}, fakeOrgs{}))
	rec, _ := serve(t, router, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeSuperAdminGetsPlatformProfile(t *testing.T) {
	authn := &fakeAuth{user: auth.AuthUser{ID: "sa", IsSuperAdmin: true}}
	profiles := &fakeProfiles{}
	router := newRouter(NewHandler(authn, profiles, fakeOrgs{}))

	ctx := middleware.WithUser(context.Background(), auth.UserContext{UserID: "sa", IsSuperAdmin: true})
	rec, env := serve(t, router, httptest.NewRequest(http.MethodGet, "/auth/me", nil).WithContext(ctx))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"moduleCode":"organizations"`)
	assert.Zero(t, profiles.orgCalls)
}

func TestMeBlockedOrganizationHasNoPermissions(t *testing.T) {
	authn := &fakeAuth{user: auth.AuthUser{ID: "u1", OrganizationID: "o1", RoleID: "r1"}}
	profiles := &fakeProfiles{}
	orgs := fakeOrgs{"o1": {ID: "o1", Slug: "acme", IsActive: true, Status: organization.StatusSuspended}}
	router := newRouter(NewHandler(authn, profiles, orgs))

	ctx := middleware.WithUser(context.Background(), auth.UserContext{UserID: "u1", OrganizationID: "o1", RoleID: "r1"})
	rec, env := serve(t, router, httptest.NewRequest(http.MethodGet, "/auth/me", nil).WithContext(ctx))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"organizationBlocked":"organization_suspended"`)
	assert.Contains(t, string(env.Data), `"permissions":[]`)
	assert.Zero(t, profiles.orgCalls)
}

func TestMeOrganizationUser(t *testing.T) {
	authn := &fakeAuth{user: auth.AuthUser{ID: "u1", OrganizationID: "o1", RoleID: "r1"}}
	profiles := &fakeProfiles{}
	orgs := fakeOrgs{"o1": {ID: "o1", Slug: "acme", IsActive: true, Status: organization.StatusActive}}
	router := newRouter(NewHandler(authn, profiles, orgs))

	ctx := middleware.WithUser(context.Background(), auth.UserContext{UserID: "u1", OrganizationID: "o1", RoleID: "r1"})
	rec, env := serve(t, router, httptest.NewRequest(http.MethodGet, "/auth/me", nil).WithContext(ctx))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"slug":"acme"`)
	assert.Equal(t, 1, profiles.orgCalls)
}

func TestLogoutRevokesSession(t *testing.T) {
	authn := &fakeAuth{}
	profiles := &fakeProfiles{}
	router := newRouter(NewHandler(authn, profiles, fakeOrgs{}))
	ctx := middleware.WithUser(context.Background(), auth.UserContext{UserID: "u1", SessionID: "s1"})
	rec, _ := serve(t, router, httptest.NewRequest(http.MethodPost, "/auth/logout", nil).WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1"}, authn.loggedOut)
	assert.Equal(t, []string{"u1"}, profiles.forgotten)
}
