package access

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
)

type roleKey struct {
	org  string
	role string
}

type fakeStore struct {
	orgs    map[string]organization.Organization
	perms   map[roleKey]map[modules.Code]Permission
	enabled map[string]map[modules.Code]bool
	err     error
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:    map[string]organization.Organization{},
		perms:   map[roleKey]map[modules.Code]Permission{},
		enabled: map[string]map[modules.Code]bool{},
	}
}

func (f *fakeStore) grant(org, role string, perm Permission) {
	key := roleKey{org: org, role: role}
	if f.perms[key] == nil {
		f.perms[key] = map[modules.Code]Permission{}
	}
	f.perms[key][perm.ModuleCode] = perm
}

func (f *fakeStore) enable(org string, code modules.Code) {
	if f.enabled[org] == nil {
		f.enabled[org] = map[modules.Code]bool{}
	}
	f.enabled[org][code] = true
}

func (f *fakeStore) OrganizationBySlug(_ context.Context, slug string) (organization.Organization, error) {
	f.calls++
	if f.err != nil {
		return organization.Organization{}, f.err
	}
	org, ok := f.orgs[slug]
	if !ok {
		return organization.Organization{}, pgx.ErrNoRows
	}
	return org, nil
}

func (f *fakeStore) RolePermission(_ context.Context, org, role string, code modules.Code) (Permission, bool, error) {
	f.calls++
	if f.err != nil {
		return Permission{}, false, f.err
	}
	perm, ok := f.perms[roleKey{org: org, role: role}][code]
	return perm, ok, nil
}

func (f *fakeStore) RolePermissions(_ context.Context, org, role string) ([]Permission, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []Permission
	for _, perm := range f.perms[roleKey{org: org, role: role}] {
		out = append(out, perm)
	}
	return out, nil
}

func (f *fakeStore) ModuleEnabled(_ context.Context, org string, code modules.Code) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.enabled[org][code], nil
}

func (f *fakeStore) EnabledModules(_ context.Context, org string) (map[modules.Code]bool, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[modules.Code]bool{}
	for code, on := range f.enabled[org] {
		out[code] = on
	}
	return out, nil
}

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(store, modules.Default(), opts...)
}

func acmeOrg() organization.Organization {
	return organization.Organization{ID: "org-acme", Slug: "acme", Name: "Acme", IsActive: true, Status: organization.StatusActive}
}

var (
	orgAdmin      = auth.UserContext{UserID: "u-admin", OrganizationID: "org-acme", RoleID: "role-admin"}
	roleless      = auth.UserContext{UserID: "u-nobody", OrganizationID: "org-acme"}
	superAdmin    = auth.UserContext{UserID: "u-root", IsSuperAdmin: true, RoleID: "role-support"}
	bootstrapRoot = auth.UserContext{UserID: "u-boot", IsSuperAdmin: true}
	tenantAcme    = &TenantContext{Organization: acmeOrg(), OrganizationID: "org-acme"}
	impersonating = &TenantContext{Organization: acmeOrg(), OrganizationID: "org-acme", IsImpersonating: true}
)

func assertDenied(t *testing.T, err error, want *Denial) {
	t.Helper()
	require.Error(t, err)
	denial, ok := AsDenial(err)
	require.True(t, ok, "expected denial, got %v", err)
	assert.Same(t, want, denial)
}

func TestRolelessUserNeverPasses(t *testing.T) {
	store := newFakeStore()
	store.enable("org-acme", modules.Recruitment)
	store.enable("org-acme", modules.Leave)
	svc := newTestService(store)

	for _, mod := range modules.Default().ByScope(modules.ScopeOrg) {
		for _, action := range append(Actions, ActionAny) {
			err := svc.AuthorizeOrg(context.Background(), roleless, tenantAcme, mod.Code, action)
			assertDenied(t, err, ErrNoRole)
		}
	}
}

func TestImpersonationNeverDeletesOrExports(t *testing.T) {
	store := newFakeStore()
	for _, mod := range modules.Default().ByScope(modules.ScopeOrg) {
		store.grant("", "role-support", FullPermission(mod.Code))
	}
	svc := newTestService(store)

	for _, user := range []auth.UserContext{superAdmin, bootstrapRoot} {
		for _, mod := range modules.Default().ByScope(modules.ScopeOrg) {
			for _, action := range []Action{ActionDelete, ActionExport} {
				err := svc.AuthorizeOrg(context.Background(), user, impersonating, mod.Code, action)
				assertDenied(t, err, ErrImpersonationRestricted)
			}
			assert.NoError(t, svc.AuthorizeOrg(context.Background(), user, impersonating, mod.Code, ActionRead))
		}
	}
}

func TestImpersonationUsesPlatformRoleNotOrgRole(t *testing.T) {
	store := newFakeStore()
	store.grant("", "role-support", Permission{ModuleCode: modules.Recruitment, CanRead: true, CanDelete: true})
	// A same-named org role row must not leak into support mode.
	store.grant("org-acme", "role-support", FullPermission(modules.Recruitment))
	svc := newTestService(store)

	ctx := context.Background()
	assert.NoError(t, svc.AuthorizeOrg(ctx, superAdmin, impersonating, modules.Recruitment, ActionRead))
	assertDenied(t, svc.AuthorizeOrg(ctx, superAdmin, impersonating, modules.Recruitment, ActionWrite), ErrPermissionDenied)
	assertDenied(t, svc.AuthorizeOrg(ctx, superAdmin, impersonating, modules.Recruitment, ActionDelete), ErrImpersonationRestricted)
	assertDenied(t, svc.AuthorizeOrg(ctx, superAdmin, impersonating, modules.Employees, ActionRead), ErrPermissionDenied)
}

func TestImpersonationAnyIgnoresRestrictedActions(t *testing.T) {
	store := newFakeStore()
	store.grant("", "role-support", Permission{ModuleCode: modules.Employees, CanDelete: true, CanExport: true})
	svc := newTestService(store)

	err := svc.AuthorizeOrg(context.Background(), superAdmin, impersonating, modules.Employees, ActionAny)
	assertDenied(t, err, ErrPermissionDenied)
}

func TestSuperAdminOutsideImpersonationIsPlatformOnly(t *testing.T) {
	svc := newTestService(newFakeStore())
	err := svc.AuthorizeOrg(context.Background(), bootstrapRoot, tenantAcme, modules.Employees, ActionRead)
	assertDenied(t, err, ErrPlatformOnly)
}

func TestNonCoreModuleMustBeEnabled(t *testing.T) {
	store := newFakeStore()
	store.grant("org-acme", "role-admin", FullPermission(modules.Recruitment))
	store.grant("org-acme", "role-admin", FullPermission(modules.Leave))
	store.enable("org-acme", modules.Leave)
	svc := newTestService(store)
	ctx := context.Background()

	for _, action := range append(Actions, ActionAny) {
		assertDenied(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.Recruitment, action), ErrModuleDisabled)
		assert.NoError(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.Leave, action))
	}
}

func TestModuleCheckPrecedesPermissionCheck(t *testing.T) {
	svc := newTestService(newFakeStore())
	err := svc.AuthorizeOrg(context.Background(), orgAdmin, tenantAcme, modules.Recruitment, ActionRead)
	assertDenied(t, err, ErrModuleDisabled)
}

func TestMasterDataReadOnlyRole(t *testing.T) {
	store := newFakeStore()
	store.grant("org-acme", "role-admin", Permission{ModuleCode: modules.MasterData, CanRead: true})
	svc := newTestService(store)
	ctx := context.Background()

	assert.NoError(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.MasterData, ActionRead))
	assert.NoError(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.MasterData, ActionAny))
	assertDenied(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.MasterData, ActionWrite), ErrPermissionDenied)
	assertDenied(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.Departments, ActionAny), ErrPermissionDenied)
}

func TestRoleFromAnotherOrganizationDoesNotApply(t *testing.T) {
	store := newFakeStore()
	store.grant("org-other", "role-admin", FullPermission(modules.Employees))
	svc := newTestService(store)

	err := svc.AuthorizeOrg(context.Background(), orgAdmin, tenantAcme, modules.Employees, ActionRead)
	assertDenied(t, err, ErrPermissionDenied)
}

func TestAuthorizeOrgInputErrors(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	assertDenied(t, svc.AuthorizeOrg(ctx, orgAdmin, nil, modules.Employees, ActionRead), ErrOrgContextMissing)
	assertDenied(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.Code("payroll"), ActionRead), ErrModuleNotFound)
	assertDenied(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.Organizations, ActionRead), ErrModuleNotFound)
}

func TestAuthorizeOrgLookupFailureIsNotADenial(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection reset")
	svc := newTestService(store)

	err := svc.AuthorizeOrg(context.Background(), orgAdmin, tenantAcme, modules.Employees, ActionRead)
	require.Error(t, err)
	_, isDenial := AsDenial(err)
	assert.False(t, isDenial)
}

func TestAuthorizePlatform(t *testing.T) {
	store := newFakeStore()
	store.grant("", "role-support", Permission{ModuleCode: modules.Organizations, CanRead: true})
	svc := newTestService(store)
	ctx := context.Background()

	assertDenied(t, svc.AuthorizePlatform(ctx, orgAdmin, modules.Organizations, ActionRead), ErrPlatformAccessRequired)
	assert.NoError(t, svc.AuthorizePlatform(ctx, bootstrapRoot, modules.Organizations, ActionDelete))
	assert.NoError(t, svc.AuthorizePlatform(ctx, superAdmin, modules.Organizations, ActionRead))
	assertDenied(t, svc.AuthorizePlatform(ctx, superAdmin, modules.Organizations, ActionWrite), ErrPermissionDenied)
	assertDenied(t, svc.AuthorizePlatform(ctx, superAdmin, modules.Code("nope"), ActionRead), ErrModuleNotFound)
}

func TestResolveTenantOrganizationGates(t *testing.T) {
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name string
		org  organization.Organization
		want *Denial
	}{
		{name: "inactive", org: organization.Organization{ID: "org-acme", Slug: "acme", IsActive: false, Status: organization.StatusActive}, want: ErrOrgInactive},
		{name: "suspended", org: organization.Organization{ID: "org-acme", Slug: "acme", IsActive: true, Status: organization.StatusSuspended}, want: ErrOrgSuspended},
		{name: "expired date", org: organization.Organization{ID: "org-acme", Slug: "acme", IsActive: true, Status: organization.StatusActive, SubscriptionExpiryDate: &past}, want: ErrSubscriptionExpired},
		{name: "expired status", org: organization.Organization{ID: "org-acme", Slug: "acme", IsActive: true, Status: organization.StatusExpired}, want: ErrSubscriptionExpired},
		{name: "valid until tomorrow", org: organization.Organization{ID: "org-acme", Slug: "acme", IsActive: true, Status: organization.StatusActive, SubscriptionExpiryDate: &future}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.orgs["acme"] = tc.org
			svc := newTestService(store)

			for _, user := range []auth.UserContext{orgAdmin, superAdmin} {
				tenant, err := svc.ResolveTenant(context.Background(), "acme", user, "acme")
				if tc.want == nil {
					require.NoError(t, err)
					assert.Equal(t, "org-acme", tenant.OrganizationID)
					continue
				}
				assertDenied(t, err, tc.want)
				assert.Equal(t, http.StatusForbidden, tc.want.Status)
			}
		})
	}
}

func TestResolveTenantAdmission(t *testing.T) {
	store := newFakeStore()
	store.orgs["acme"] = acmeOrg()
	svc := newTestService(store)
	ctx := context.Background()

	tenant, err := svc.ResolveTenant(ctx, "ACME", orgAdmin, "")
	require.NoError(t, err)
	assert.False(t, tenant.IsImpersonating)

	// Header is ignored for regular users.
	tenant, err = svc.ResolveTenant(ctx, "acme", orgAdmin, "acme")
	require.NoError(t, err)
	assert.False(t, tenant.IsImpersonating)

	_, err = svc.ResolveTenant(ctx, "acme", auth.UserContext{UserID: "u2", OrganizationID: "org-other", RoleID: "r"}, "")
	assertDenied(t, err, ErrWrongOrganization)

	_, err = svc.ResolveTenant(ctx, "acme", superAdmin, "")
	assertDenied(t, err, ErrImpersonationRequired)

	_, err = svc.ResolveTenant(ctx, "acme", superAdmin, "globex")
	assertDenied(t, err, ErrImpersonationRequired)

	tenant, err = svc.ResolveTenant(ctx, "acme", superAdmin, " acme ")
	require.NoError(t, err)
	assert.True(t, tenant.IsImpersonating)

	_, err = svc.ResolveTenant(ctx, "globex", orgAdmin, "")
	assertDenied(t, err, ErrOrgNotFound)

	_, err = svc.ResolveTenant(ctx, " ", orgAdmin, "")
	assertDenied(t, err, ErrOrgContextMissing)
}

func TestResolveTenantStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("timeout")
	svc := newTestService(store)

	_, err := svc.ResolveTenant(context.Background(), "acme", orgAdmin, "")
	require.Error(t, err)
	_, isDenial := AsDenial(err)
	assert.False(t, isDenial)
}

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) ObserveDecision(_ string, _ modules.Code, _ Action, outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestDecisionsAreObserved(t *testing.T) {
	store := newFakeStore()
	store.grant("org-acme", "role-admin", Permission{ModuleCode: modules.Employees, CanRead: true})
	obs := &recordingObserver{}
	svc := newTestService(store, WithObserver(obs))
	ctx := context.Background()

	_ = svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.Employees, ActionRead)
	_ = svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.Employees, ActionDelete)
	_ = svc.AuthorizeOrg(ctx, superAdmin, impersonating, modules.Employees, ActionExport)

	assert.Equal(t, []string{"allowed", "forbidden", "impersonation_restricted"}, obs.outcomes)
}

func findPerm(t *testing.T, perms []Permission, code modules.Code) Permission {
	t.Helper()
	for _, perm := range perms {
		if perm.ModuleCode == code {
			return perm
		}
	}
	t.Fatalf("module %s missing from profile", code)
	return Permission{}
}

func TestOrgProfileMirrorsPolicy(t *testing.T) {
	store := newFakeStore()
	store.grant("org-acme", "role-admin", Permission{ModuleCode: modules.MasterData, CanRead: true})
	store.grant("org-acme", "role-admin", FullPermission(modules.Recruitment))
	store.grant("org-acme", "role-admin", FullPermission(modules.Leave))
	store.enable("org-acme", modules.Leave)
	svc := newTestService(store)

	profile, err := svc.OrgProfile(context.Background(), orgAdmin, tenantAcme)
	require.NoError(t, err)
	assert.Len(t, profile.Permissions, len(modules.Default().ByScope(modules.ScopeOrg)))
	assert.Equal(t, Permission{ModuleCode: modules.MasterData, CanRead: true}, findPerm(t, profile.Permissions, modules.MasterData))
	assert.Equal(t, Permission{ModuleCode: modules.Recruitment}, findPerm(t, profile.Permissions, modules.Recruitment))
	assert.Equal(t, FullPermission(modules.Leave), findPerm(t, profile.Permissions, modules.Leave))
	assert.Equal(t, Permission{ModuleCode: modules.Employees}, findPerm(t, profile.Permissions, modules.Employees))
}

func TestOrgProfileSupportMode(t *testing.T) {
	svc := newTestService(newFakeStore())

	profile, err := svc.OrgProfile(context.Background(), bootstrapRoot, impersonating)
	require.NoError(t, err)
	assert.True(t, profile.IsImpersonating)
	for _, perm := range profile.Permissions {
		assert.True(t, perm.CanRead)
		assert.False(t, perm.CanDelete)
		assert.False(t, perm.CanExport)
	}

	_, err = svc.OrgProfile(context.Background(), bootstrapRoot, tenantAcme)
	assertDenied(t, err, ErrPlatformOnly)
}

func TestOrgProfileRoleless(t *testing.T) {
	svc := newTestService(newFakeStore())
	profile, err := svc.OrgProfile(context.Background(), roleless, tenantAcme)
	require.NoError(t, err)
	for _, perm := range profile.Permissions {
		assert.False(t, perm.Allows(ActionAny))
	}
}

func TestOrgProfileUsesCacheUntilInvalidated(t *testing.T) {
	store := newFakeStore()
	store.grant("org-acme", "role-admin", Permission{ModuleCode: modules.Employees, CanRead: true})
	cache := NewProfileCache(16, time.Minute)
	svc := newTestService(store, WithProfileCache(cache))
	ctx := context.Background()

	_, err := svc.OrgProfile(ctx, orgAdmin, tenantAcme)
	require.NoError(t, err)
	callsAfterFirst := store.calls

	store.grant("org-acme", "role-admin", Permission{ModuleCode: modules.Employees, CanRead: true, CanWrite: true})
	profile, err := svc.OrgProfile(ctx, orgAdmin, tenantAcme)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, store.calls)
	assert.False(t, findPerm(t, profile.Permissions, modules.Employees).CanWrite)

	assert.Equal(t, 1, cache.InvalidateRole("role-admin"))
	profile, err = svc.OrgProfile(ctx, orgAdmin, tenantAcme)
	require.NoError(t, err)
	assert.True(t, findPerm(t, profile.Permissions, modules.Employees).CanWrite)

	// Authorization never reads the cache.
	assert.NoError(t, svc.AuthorizeOrg(ctx, orgAdmin, tenantAcme, modules.Employees, ActionWrite))
}

func TestPlatformProfile(t *testing.T) {
	store := newFakeStore()
	store.grant("", "role-support", Permission{ModuleCode: modules.Organizations, CanRead: true})
	svc := newTestService(store)

	profile, err := svc.PlatformProfile(context.Background(), superAdmin)
	require.NoError(t, err)
	assert.True(t, findPerm(t, profile.Permissions, modules.Organizations).CanRead)
	assert.False(t, findPerm(t, profile.Permissions, modules.PlatformRoles).CanRead)

	profile, err = svc.PlatformProfile(context.Background(), bootstrapRoot)
	require.NoError(t, err)
	assert.Equal(t, FullPermission(modules.Recruitment), findPerm(t, profile.Permissions, modules.Recruitment))

	_, err = svc.PlatformProfile(context.Background(), orgAdmin)
	assertDenied(t, err, ErrPlatformAccessRequired)
}

func TestValidateMatrix(t *testing.T) {
	svc := newTestService(newFakeStore())

	out, err := svc.ValidateMatrix([]Permission{{ModuleCode: " employees ", CanRead: true}}, modules.ScopeOrg)
	require.NoError(t, err)
	assert.Equal(t, modules.Employees, out[0].ModuleCode)

	_, err = svc.ValidateMatrix([]Permission{{ModuleCode: "employes"}}, modules.ScopeOrg)
	assert.ErrorIs(t, err, modules.ErrUnknownModule)
	assert.ErrorIs(t, err, ErrInvalidMatrix)

	_, err = svc.ValidateMatrix([]Permission{{ModuleCode: modules.Organizations}}, modules.ScopeOrg)
	assert.ErrorIs(t, err, ErrInvalidMatrix)

	_, err = svc.ValidateMatrix([]Permission{{ModuleCode: modules.Organizations}, {ModuleCode: modules.Recruitment}}, modules.ScopePlatform)
	assert.NoError(t, err)

	_, err = svc.ValidateMatrix([]Permission{{ModuleCode: modules.Leave}, {ModuleCode: modules.Leave}}, modules.ScopeOrg)
	assert.ErrorIs(t, err, ErrInvalidMatrix)
}
