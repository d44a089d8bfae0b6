package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
)

type stubAuthorizer struct {
	orgErr      error
	platformErr error
	gotTenant   *access.TenantContext
	gotAction   access.Action
}

func (s *stubAuthorizer) Registry() *modules.Registry {
	return modules.Default()
}

func (s *stubAuthorizer) AuthorizeOrg(_ context.Context, _ auth.UserContext, tenant *access.TenantContext, _ modules.Code, action access.Action) error {
	s.gotTenant = tenant
	s.gotAction = action
	return s.orgErr
}

func (s *stubAuthorizer) AuthorizePlatform(_ context.Context, _ auth.UserContext, _ modules.Code, action access.Action) error {
	s.gotAction = action
	return s.platformErr
}

type stubResolver struct {
	tenant  access.TenantContext
	err     error
	gotSlug string
	gotHdr  string
}

func (s *stubResolver) ResolveTenant(_ context.Context, slug string, _ auth.UserContext, header string) (access.TenantContext, error) {
	s.gotSlug = slug
	s.gotHdr = header
	return s.tenant, s.err
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestCheckOrgPermissionMapsDenials(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "allowed", wantStatus: http.StatusNoContent},
		{name: "denied", err: access.ErrPermissionDenied, wantStatus: http.StatusForbidden, wantCode: "forbidden"},
		{name: "module disabled", err: access.ErrModuleDisabled, wantStatus: http.StatusForbidden, wantCode: "module_disabled"},
		{name: "support restricted", err: access.ErrImpersonationRestricted, wantStatus: http.StatusForbidden, wantCode: "impersonation_restricted"},
		{name: "missing tenant", err: access.ErrOrgContextMissing, wantStatus: http.StatusBadRequest, wantCode: "organization_required"},
		{name: "backend failure", err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantCode: "permission_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			authz := &stubAuthorizer{orgErr: tc.err}
			handler := CheckOrgPermission(authz, modules.Employees, access.ActionRead)(http.HandlerFunc(okHandler))

			ctx := WithUser(context.Background(), auth.UserContext{UserID: "u1", OrganizationID: "o1", RoleID: "r1"})
			ctx = WithTenant(ctx, access.TenantContext{OrganizationID: "o1"})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/acme/employees", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantCode != "" {
				assert.Equal(t, tc.wantCode, decodeError(t, rec))
			}
			require.NotNil(t, authz.gotTenant)
			assert.Equal(t, "o1", authz.gotTenant.OrganizationID)
		})
	}
}

func TestCheckAnyOrgPermissionUsesAnyAction(t *testing.T) {
	authz := &stubAuthorizer{}
	handler := CheckAnyOrgPermission(authz, modules.Dashboard)(http.HandlerFunc(okHandler))
	ctx := WithUser(context.Background(), auth.UserContext{UserID: "u1"})
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	assert.Equal(t, access.ActionAny, authz.gotAction)
}

func TestCheckPermissionRequiresUser(t *testing.T) {
	handler := CheckPermission(&stubAuthorizer{}, modules.Organizations, access.ActionRead)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckPermissionPlatformDenied(t *testing.T) {
	authz := &stubAuthorizer{platformErr: access.ErrPlatformAccessRequired}
	handler := CheckAnyPermission(authz, modules.Organizations)(http.HandlerFunc(okHandler))
	ctx := WithUser(context.Background(), auth.UserContext{UserID: "u1", OrganizationID: "o1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, access.ActionAny, authz.gotAction)
}

func TestCheckPermissionPanicsOnUnknownModule(t *testing.T) {
	assert.Panics(t, func() {
		CheckOrgPermission(&stubAuthorizer{}, modules.Code("employes"), access.ActionRead)
	})
}

func TestTenantContextResolvesSlugAndHeader(t *testing.T) {
	resolver := &stubResolver{tenant: access.TenantContext{
		Organization:    organization.Organization{ID: "o1", Slug: "acme"},
		OrganizationID:  "o1",
		IsImpersonating: true,
	}}

	var seen *access.TenantContext
	r := chi.NewRouter()
	r.With(TenantContext(resolver)).Get("/api/v1/{orgSlug}/employees", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetTenant(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := WithUser(context.Background(), auth.UserContext{UserID: "sa", IsSuperAdmin: true})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/acme/employees", nil).WithContext(ctx)
	req.Header.Set(ImpersonateHeader, "acme")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "acme", resolver.gotSlug)
	assert.Equal(t, "acme", resolver.gotHdr)
	require.NotNil(t, seen)
	assert.True(t, seen.IsImpersonating)
}

func TestTenantContextErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "unknown slug", err: access.ErrOrgNotFound, wantStatus: http.StatusNotFound, wantCode: "organization_not_found"},
		{name: "suspended", err: access.ErrOrgSuspended, wantStatus: http.StatusForbidden, wantCode: "organization_suspended"},
		{name: "expired", err: access.ErrSubscriptionExpired, wantStatus: http.StatusForbidden, wantCode: "subscription_expired"},
		{name: "foreign user", err: access.ErrWrongOrganization, wantStatus: http.StatusForbidden, wantCode: "forbidden"},
		{name: "lookup failure", err: errors.New("timeout"), wantStatus: http.StatusInternalServerError, wantCode: "tenant_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.With(TenantContext(&stubResolver{err: tc.err})).Get("/api/v1/{orgSlug}/employees", okHandler)

			ctx := WithUser(context.Background(), auth.UserContext{UserID: "u1", OrganizationID: "o2"})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/acme/employees", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rec))
		})
	}
}

func TestTenantContextRequiresUser(t *testing.T) {
	r := chi.NewRouter()
	r.With(TenantContext(&stubResolver{})).Get("/api/v1/{orgSlug}/employees", okHandler)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/acme/employees", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
