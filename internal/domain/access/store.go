package access

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
)

// PGStore reads the permission tables. Permission flags are BOOLEAN NOT NULL
// columns scanned straight into bool fields.
type PGStore struct {
	DB   *pgxpool.Pool
	Orgs *organization.Store
}

func NewPGStore(db *pgxpool.Pool, orgs *organization.Store) *PGStore {
	return &PGStore{DB: db, Orgs: orgs}
}

func (s *PGStore) OrganizationBySlug(ctx context.Context, slug string) (organization.Organization, error) {
	return s.Orgs.GetBySlug(ctx, slug)
}

// roleScopeClause limits a role lookup to platform roles ($2 = '') or to roles
// of one organization.
const roleScopeClause = `
      AND ((NULLIF($2, '') IS NULL AND r.organization_id IS NULL)
        OR r.organization_id::text = $2)`

func (s *PGStore) RolePermission(ctx context.Context, organizationID, roleID string, code modules.Code) (Permission, bool, error) {
	perm := Permission{ModuleCode: code}
	err := s.DB.QueryRow(ctx, `
    SELECT rp.can_read, rp.can_write, rp.can_update, rp.can_delete, rp.can_approve, rp.can_export
    FROM role_permissions rp
    JOIN roles r ON r.id = rp.role_id
    WHERE rp.role_id = $1 AND rp.module_code = $3`+roleScopeClause,
		roleID, organizationID, string(code)).
		Scan(&perm.CanRead, &perm.CanWrite, &perm.CanUpdate, &perm.CanDelete, &perm.CanApprove, &perm.CanExport)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{ModuleCode: code}, false, nil
	}
	if err != nil {
		return Permission{}, false, err
	}
	return perm, true, nil
}

func (s *PGStore) RolePermissions(ctx context.Context, organizationID, roleID string) ([]Permission, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT rp.module_code, rp.can_read, rp.can_write, rp.can_update, rp.can_delete, rp.can_approve, rp.can_export
    FROM role_permissions rp
    JOIN roles r ON r.id = rp.role_id
    WHERE rp.role_id = $1`+roleScopeClause+`
    ORDER BY rp.module_code`, roleID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Permission
	for rows.Next() {
		var perm Permission
		var code string
		if err := rows.Scan(&code, &perm.CanRead, &perm.CanWrite, &perm.CanUpdate, &perm.CanDelete, &perm.CanApprove, &perm.CanExport); err != nil {
			return nil, err
		}
		perm.ModuleCode = modules.Code(code)
		out = append(out, perm)
	}
	return out, rows.Err()
}

func (s *PGStore) ModuleEnabled(ctx context.Context, organizationID string, code modules.Code) (bool, error) {
	var enabled bool
	err := s.DB.QueryRow(ctx, `
    SELECT is_enabled
    FROM organization_modules
    WHERE organization_id = $1 AND module_code = $2
  `, organizationID, string(code)).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

func (s *PGStore) EnabledModules(ctx context.Context, organizationID string) (map[modules.Code]bool, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT module_code
    FROM organization_modules
    WHERE organization_id = $1 AND is_enabled
  `, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[modules.Code]bool{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out[modules.Code(code)] = true
	}
	return out, rows.Err()
}
