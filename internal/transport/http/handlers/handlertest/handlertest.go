// Package handlertest holds fakes shared by handler tests.
package handlertest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
	"hradmin/internal/transport/http/middleware"
)

// AllowAll is a guard that lets every request through.
func AllowAll(modules.Code, access.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

// AccessStore is an in-memory access.Store.
type AccessStore struct {
	mu      sync.Mutex
	Orgs    map[string]organization.Organization
	Perms   map[string]map[modules.Code]access.Permission
	Enabled map[string]map[modules.Code]bool
	// PlatformRoles marks role ids that belong to no organization.
	PlatformRoles map[string]bool
	RoleOrg       map[string]string
}

func NewAccessStore() *AccessStore {
	return &AccessStore{
		Orgs:          map[string]organization.Organization{},
		Perms:         map[string]map[modules.Code]access.Permission{},
		Enabled:       map[string]map[modules.Code]bool{},
		PlatformRoles: map[string]bool{},
		RoleOrg:       map[string]string{},
	}
}

func (s *AccessStore) AddOrg(org organization.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Orgs[org.Slug] = org
}

func (s *AccessStore) Grant(organizationID, roleID string, perm access.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if organizationID == "" {
		s.PlatformRoles[roleID] = true
	} else {
		s.RoleOrg[roleID] = organizationID
	}
	if s.Perms[roleID] == nil {
		s.Perms[roleID] = map[modules.Code]access.Permission{}
	}
	s.Perms[roleID][perm.ModuleCode] = perm
}

func (s *AccessStore) Enable(organizationID string, code modules.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Enabled[organizationID] == nil {
		s.Enabled[organizationID] = map[modules.Code]bool{}
	}
	s.Enabled[organizationID][code] = true
}

func (s *AccessStore) OrganizationBySlug(_ context.Context, slug string) (organization.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.Orgs[slug]
	if !ok {
		return organization.Organization{}, pgx.ErrNoRows
	}
	return org, nil
}

func (s *AccessStore) inScope(organizationID, roleID string) bool {
	if organizationID == "" {
		return s.PlatformRoles[roleID]
	}
	return s.RoleOrg[roleID] == organizationID
}

func (s *AccessStore) RolePermission(_ context.Context, organizationID, roleID string, code modules.Code) (access.Permission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(organizationID, roleID) {
		return access.Permission{ModuleCode: code}, false, nil
	}
	perm, ok := s.Perms[roleID][code]
	if !ok {
		return access.Permission{ModuleCode: code}, false, nil
	}
	return perm, true, nil
}

func (s *AccessStore) RolePermissions(_ context.Context, organizationID, roleID string) ([]access.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(organizationID, roleID) {
		return nil, nil
	}
	var out []access.Permission
	for _, perm := range s.Perms[roleID] {
		out = append(out, perm)
	}
	return out, nil
}

func (s *AccessStore) ModuleEnabled(_ context.Context, organizationID string, code modules.Code) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Enabled[organizationID][code], nil
}

func (s *AccessStore) EnabledModules(_ context.Context, organizationID string) (map[modules.Code]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[modules.Code]bool{}
	for code, on := range s.Enabled[organizationID] {
		out[code] = on
	}
	return out, nil
}

// AuditLog captures recorded audit entries.
type AuditLog struct {
	mu      sync.Mutex
	Entries []audit.Entry
}

func (a *AuditLog) Record(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Entries = append(a.Entries, entry)
	return nil
}

func (a *AuditLog) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.Action)
	}
	return out
}

// OrgRequest builds a request that already passed authentication and tenant
// resolution.
func OrgRequest(method, target string, body *string, user auth.UserContext, tenant access.TenantContext) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, stringsReader(*body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := middleware.WithUser(req.Context(), user)
	if tenant.OrganizationID != "" {
		ctx = middleware.WithTenant(ctx, tenant)
	}
	return req.WithContext(ctx)
}

func Body(s string) *string {
	return &s
}

type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Serve(t *testing.T, handler http.Handler, req *http.Request) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var env Envelope
	if ct := rec.Header().Get("Content-Type"); ct == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
	}
	return rec, env
}
