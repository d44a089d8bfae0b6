package roles

import (
	"context"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/modules"
)

type Repository interface {
	List(ctx context.Context, organizationID string) ([]Role, error)
	Get(ctx context.Context, organizationID, roleID string) (Role, error)
	Create(ctx context.Context, organizationID string, role Role) (string, error)
	Update(ctx context.Context, organizationID, roleID string, role Role) (bool, error)
	Delete(ctx context.Context, organizationID, roleID string) (bool, error)
	Permissions(ctx context.Context, organizationID, roleID string) ([]access.Permission, error)
	ReplacePermissions(ctx context.Context, organizationID, roleID string, perms []access.Permission) error
}

// Service manages roles of one scope: organization roles when called with an
// organization id, platform roles when called with "".
type Service struct {
	repo  Repository
	authz *access.Service
}

func NewService(repo Repository, authz *access.Service) *Service {
	return &Service{repo: repo, authz: authz}
}

func scopeOf(organizationID string) modules.Scope {
	if organizationID == "" {
		return modules.ScopePlatform
	}
	return modules.ScopeOrg
}

func (s *Service) List(ctx context.Context, organizationID string) ([]Role, error) {
	return s.repo.List(ctx, organizationID)
}

func (s *Service) Get(ctx context.Context, organizationID, roleID string) (Role, error) {
	return s.repo.Get(ctx, organizationID, roleID)
}

func (s *Service) Create(ctx context.Context, organizationID string, role Role) (string, error) {
	if err := role.Normalize(); err != nil {
		return "", err
	}
	return s.repo.Create(ctx, organizationID, role)
}

func (s *Service) Update(ctx context.Context, organizationID, roleID string, role Role) (bool, error) {
	if err := role.Normalize(); err != nil {
		return false, err
	}
	return s.repo.Update(ctx, organizationID, roleID, role)
}

func (s *Service) Delete(ctx context.Context, organizationID, roleID string) (bool, error) {
	ok, err := s.repo.Delete(ctx, organizationID, roleID)
	if ok {
		s.authz.Cache().InvalidateRole(roleID)
	}
	return ok, err
}

// Matrix returns one row per module visible in the role's scope, zero rows
// filled in for modules the role has no entry for.
func (s *Service) Matrix(ctx context.Context, organizationID, roleID string) (Role, []access.Permission, error) {
	role, err := s.repo.Get(ctx, organizationID, roleID)
	if err != nil {
		return Role{}, nil, err
	}
	stored, err := s.repo.Permissions(ctx, organizationID, roleID)
	if err != nil {
		return Role{}, nil, err
	}
	byCode := make(map[modules.Code]access.Permission, len(stored))
	for _, perm := range stored {
		byCode[perm.ModuleCode] = perm
	}

	visible := s.authz.Registry().All()
	if scopeOf(organizationID) == modules.ScopeOrg {
		visible = s.authz.Registry().ByScope(modules.ScopeOrg)
	}
	out := make([]access.Permission, 0, len(visible))
	for _, mod := range visible {
		perm, ok := byCode[mod.Code]
		if !ok {
			perm = access.Permission{ModuleCode: mod.Code}
		}
		out = append(out, perm)
	}
	return role, out, nil
}

// SetMatrix validates and stores a full permission matrix. Platform roles may
// carry organization module rows; they apply during support mode.
func (s *Service) SetMatrix(ctx context.Context, organizationID, roleID string, perms []access.Permission) ([]access.Permission, error) {
	normalized, err := s.authz.ValidateMatrix(perms, scopeOf(organizationID))
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplacePermissions(ctx, organizationID, roleID, normalized); err != nil {
		return nil, err
	}
	s.authz.Cache().InvalidateRole(roleID)
	return normalized, nil
}

func (s *Service) MatrixPDF(ctx context.Context, organizationID, roleID string) ([]byte, Role, error) {
	role, perms, err := s.Matrix(ctx, organizationID, roleID)
	if err != nil {
		return nil, Role{}, err
	}
	data, err := RenderMatrixPDF(role, perms, s.authz.Registry())
	return data, role, err
}
