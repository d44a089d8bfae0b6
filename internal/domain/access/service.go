package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
)

// Store is the data the policy reads. Every call hits the database; nothing
// on the authorization path is cached.
type Store interface {
	OrganizationBySlug(ctx context.Context, slug string) (organization.Organization, error)
	// RolePermission returns the matrix row for roleID and code. An empty
	// organizationID restricts the lookup to platform roles, otherwise the
	// role must belong to that organization. found is false when no row exists.
	RolePermission(ctx context.Context, organizationID, roleID string, code modules.Code) (perm Permission, found bool, err error)
	RolePermissions(ctx context.Context, organizationID, roleID string) ([]Permission, error)
	ModuleEnabled(ctx context.Context, organizationID string, code modules.Code) (bool, error)
	EnabledModules(ctx context.Context, organizationID string) (map[modules.Code]bool, error)
}

// DecisionObserver receives every authorization outcome.
type DecisionObserver interface {
	ObserveDecision(scope string, module modules.Code, action Action, outcome string)
}

// TenantContext is the resolved organization for an org-scoped request.
type TenantContext struct {
	Organization    organization.Organization
	OrganizationID  string
	IsImpersonating bool
}

type Service struct {
	store    Store
	registry *modules.Registry
	cache    *ProfileCache
	observer DecisionObserver
	now      func() time.Time
}

type Option func(*Service)

func WithProfileCache(cache *ProfileCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithObserver(observer DecisionObserver) Option {
	return func(s *Service) { s.observer = observer }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, registry *modules.Registry, opts ...Option) *Service {
	s := &Service{store: store, registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Registry() *modules.Registry {
	return s.registry
}

func (s *Service) Cache() *ProfileCache {
	return s.cache
}

// ForgetUser drops every cached profile of userID.
func (s *Service) ForgetUser(userID string) {
	s.cache.InvalidateUser(userID)
}

// CheckOrganization rejects organizations that may not be used at now. The
// order of checks decides which error a caller sees.
func CheckOrganization(org organization.Organization, now time.Time) error {
	if !org.IsActive {
		return ErrOrgInactive
	}
	if org.Status == organization.StatusSuspended {
		return ErrOrgSuspended
	}
	if org.Expired(now) {
		return ErrSubscriptionExpired
	}
	return nil
}

// AdmitCaller decides whether user may act inside org. Super admins get in
// only through support mode, which requires impersonateSlug to name org.
func AdmitCaller(org organization.Organization, user auth.UserContext, impersonateSlug string) (impersonating bool, err error) {
	if user.IsSuperAdmin {
		header := organization.NormalizeSlug(impersonateSlug)
		if header == "" || header != org.Slug {
			return false, ErrImpersonationRequired
		}
		return true, nil
	}
	if user.OrganizationID == "" || user.OrganizationID != org.ID {
		return false, ErrWrongOrganization
	}
	return false, nil
}

// ResolveTenant loads the organization named by slug and admits user into it.
func (s *Service) ResolveTenant(ctx context.Context, slug string, user auth.UserContext, impersonateSlug string) (TenantContext, error) {
	slug = organization.NormalizeSlug(slug)
	if slug == "" {
		return TenantContext{}, ErrOrgContextMissing
	}
	org, err := s.store.OrganizationBySlug(ctx, slug)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantContext{}, ErrOrgNotFound
	}
	if err != nil {
		return TenantContext{}, fmt.Errorf("load organization %q: %w", slug, err)
	}
	if err := CheckOrganization(org, s.now()); err != nil {
		return TenantContext{}, err
	}
	impersonating, err := AdmitCaller(org, user, impersonateSlug)
	if err != nil {
		return TenantContext{}, err
	}
	return TenantContext{Organization: org, OrganizationID: org.ID, IsImpersonating: impersonating}, nil
}

func (s *Service) orgModule(code modules.Code) (modules.Module, error) {
	mod, err := s.registry.Lookup(string(code))
	if err != nil || mod.Scope != modules.ScopeOrg {
		return modules.Module{}, ErrModuleNotFound
	}
	return mod, nil
}

// AuthorizeOrg evaluates action on module code for user inside tenant.
func (s *Service) AuthorizeOrg(ctx context.Context, user auth.UserContext, tenant *TenantContext, code modules.Code, action Action) error {
	err := s.authorizeOrg(ctx, user, tenant, code, action)
	s.observe("org", code, action, err)
	return err
}

func (s *Service) authorizeOrg(ctx context.Context, user auth.UserContext, tenant *TenantContext, code modules.Code, action Action) error {
	if tenant == nil || tenant.OrganizationID == "" {
		return ErrOrgContextMissing
	}
	mod, err := s.orgModule(code)
	if err != nil {
		return err
	}

	if user.IsSuperAdmin {
		if !tenant.IsImpersonating {
			return ErrPlatformOnly
		}
		if RestrictedInSupportMode(action) {
			return ErrImpersonationRestricted
		}
		if user.RoleID == "" {
			return nil
		}
		perm, found, err := s.store.RolePermission(ctx, "", user.RoleID, mod.Code)
		if err != nil {
			return fmt.Errorf("platform role permission lookup: %w", err)
		}
		if !found || !perm.SupportMode().Allows(action) {
			return ErrPermissionDenied
		}
		return nil
	}

	if user.RoleID == "" {
		return ErrNoRole
	}

	if !mod.Core {
		enabled, err := s.store.ModuleEnabled(ctx, tenant.OrganizationID, mod.Code)
		if err != nil {
			return fmt.Errorf("module enablement lookup: %w", err)
		}
		if !enabled {
			return ErrModuleDisabled
		}
	}

	perm, found, err := s.store.RolePermission(ctx, tenant.OrganizationID, user.RoleID, mod.Code)
	if err != nil {
		return fmt.Errorf("role permission lookup: %w", err)
	}
	if !found || !perm.Allows(action) {
		return ErrPermissionDenied
	}
	return nil
}

// AuthorizePlatform evaluates action on module code for a platform route.
func (s *Service) AuthorizePlatform(ctx context.Context, user auth.UserContext, code modules.Code, action Action) error {
	err := s.authorizePlatform(ctx, user, code, action)
	s.observe("platform", code, action, err)
	return err
}

func (s *Service) authorizePlatform(ctx context.Context, user auth.UserContext, code modules.Code, action Action) error {
	mod, err := s.registry.Lookup(string(code))
	if err != nil {
		return ErrModuleNotFound
	}
	if !user.IsSuperAdmin {
		return ErrPlatformAccessRequired
	}
	if user.RoleID == "" {
		return nil
	}
	perm, found, err := s.store.RolePermission(ctx, "", user.RoleID, mod.Code)
	if err != nil {
		return fmt.Errorf("platform role permission lookup: %w", err)
	}
	if !found || !perm.Allows(action) {
		return ErrPermissionDenied
	}
	return nil
}

func (s *Service) observe(scope string, code modules.Code, action Action, err error) {
	if s.observer == nil {
		return
	}
	outcome := "allowed"
	if err != nil {
		if denial, ok := AsDenial(err); ok {
			outcome = denial.Code
		} else {
			outcome = "error"
		}
	}
	s.observer.ObserveDecision(scope, code, action, outcome)
}

// Profile is the effective permission matrix of a caller, used by the admin
// console to hide controls. It is advisory; every request is re-authorized.
type Profile struct {
	Key             ProfileKey   `json:"-"`
	OrganizationID  string       `json:"organizationId,omitempty"`
	IsSuperAdmin    bool         `json:"isSuperAdmin"`
	IsImpersonating bool         `json:"isImpersonating"`
	Permissions     []Permission `json:"permissions"`
	GeneratedAt     time.Time    `json:"generatedAt"`
}

// Granting returns the permissions of p that allow action.
func (p Profile) Granting(action Action) []Permission {
	out := []Permission{}
	for _, perm := range p.Permissions {
		if perm.Allows(action) {
			out = append(out, perm)
		}
	}
	return out
}

// OrgProfile returns the caller's effective permissions inside tenant,
// following the same precedence as AuthorizeOrg.
func (s *Service) OrgProfile(ctx context.Context, user auth.UserContext, tenant *TenantContext) (Profile, error) {
	if tenant == nil || tenant.OrganizationID == "" {
		return Profile{}, ErrOrgContextMissing
	}
	if user.IsSuperAdmin && !tenant.IsImpersonating {
		return Profile{}, ErrPlatformOnly
	}
	key := ProfileKey{
		OrganizationID: tenant.OrganizationID,
		UserID:         user.UserID,
		RoleID:         user.RoleID,
		IsSuperAdmin:   user.IsSuperAdmin,
		Impersonating:  tenant.IsImpersonating,
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}

	orgModules := s.registry.ByScope(modules.ScopeOrg)
	perms := make([]Permission, 0, len(orgModules))

	switch {
	case user.IsSuperAdmin:
		granted := map[modules.Code]Permission{}
		if user.RoleID != "" {
			rows, err := s.store.RolePermissions(ctx, "", user.RoleID)
			if err != nil {
				return Profile{}, fmt.Errorf("platform role permissions: %w", err)
			}
			for _, row := range rows {
				granted[row.ModuleCode] = row
			}
		}
		for _, mod := range orgModules {
			perm := Permission{ModuleCode: mod.Code}
			if user.RoleID == "" {
				perm = FullPermission(mod.Code)
			} else if row, ok := granted[mod.Code]; ok {
				perm = row
			}
			perms = append(perms, perm.SupportMode())
		}
	case user.RoleID == "":
		for _, mod := range orgModules {
			perms = append(perms, Permission{ModuleCode: mod.Code})
		}
	default:
		enabled, err := s.store.EnabledModules(ctx, tenant.OrganizationID)
		if err != nil {
			return Profile{}, fmt.Errorf("enabled modules: %w", err)
		}
		rows, err := s.store.RolePermissions(ctx, tenant.OrganizationID, user.RoleID)
		if err != nil {
			return Profile{}, fmt.Errorf("role permissions: %w", err)
		}
		granted := make(map[modules.Code]Permission, len(rows))
		for _, row := range rows {
			granted[row.ModuleCode] = row
		}
		for _, mod := range orgModules {
			perm := Permission{ModuleCode: mod.Code}
			if mod.Core || enabled[mod.Code] {
				if row, ok := granted[mod.Code]; ok {
					perm = row
				}
			}
			perms = append(perms, perm)
		}
	}

	profile := Profile{
		Key:             key,
		OrganizationID:  tenant.OrganizationID,
		IsSuperAdmin:    user.IsSuperAdmin,
		IsImpersonating: tenant.IsImpersonating,
		Permissions:     perms,
		GeneratedAt:     s.now().UTC(),
	}
	if s.cache != nil {
		s.cache.Add(profile)
	}
	return profile, nil
}

// PlatformProfile returns a super admin's permissions over every module.
func (s *Service) PlatformProfile(ctx context.Context, user auth.UserContext) (Profile, error) {
	if !user.IsSuperAdmin {
		return Profile{}, ErrPlatformAccessRequired
	}
	key := ProfileKey{UserID: user.UserID, RoleID: user.RoleID, IsSuperAdmin: true}
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}

	granted := map[modules.Code]Permission{}
	if user.RoleID != "" {
		rows, err := s.store.RolePermissions(ctx, "", user.RoleID)
		if err != nil {
			return Profile{}, fmt.Errorf("platform role permissions: %w", err)
		}
		for _, row := range rows {
			granted[row.ModuleCode] = row
		}
	}
	all := s.registry.All()
	perms := make([]Permission, 0, len(all))
	for _, mod := range all {
		perm := Permission{ModuleCode: mod.Code}
		if user.RoleID == "" {
			perm = FullPermission(mod.Code)
		} else if row, ok := granted[mod.Code]; ok {
			perm = row
		}
		perms = append(perms, perm)
	}

	profile := Profile{Key: key, IsSuperAdmin: true, Permissions: perms, GeneratedAt: s.now().UTC()}
	if s.cache != nil {
		s.cache.Add(profile)
	}
	return profile, nil
}

// ValidateMatrix normalizes a submitted permission matrix: every code must be
// registered and may appear once.
func (s *Service) ValidateMatrix(perms []Permission, scope modules.Scope) ([]Permission, error) {
	seen := map[modules.Code]struct{}{}
	out := make([]Permission, 0, len(perms))
	for _, perm := range perms {
		code := modules.Code(strings.TrimSpace(string(perm.ModuleCode)))
		mod, err := s.registry.Lookup(string(code))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMatrix, err)
		}
		if scope == modules.ScopeOrg && mod.Scope != modules.ScopeOrg {
			return nil, fmt.Errorf("%w: %s is not an organization module", ErrInvalidMatrix, code)
		}
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("%w: duplicate module code %s", ErrInvalidMatrix, code)
		}
		seen[code] = struct{}{}
		perm.ModuleCode = code
		out = append(out, perm)
	}
	return out, nil
}
