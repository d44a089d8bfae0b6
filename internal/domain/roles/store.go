package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/modules"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// scopeClause matches platform roles when $1 is empty, otherwise roles of
// organization $1.
const scopeClause = `((NULLIF($1, '') IS NULL AND r.organization_id IS NULL) OR r.organization_id::text = $1)`

const roleColumns = `
    SELECT r.id, COALESCE(r.organization_id::text, ''), r.name, r.description,
           (SELECT COUNT(1) FROM users u WHERE u.role_id = r.id),
           r.created_at, r.updated_at
    FROM roles r`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.Description, &role.UserCount, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

func (s *Store) List(ctx context.Context, organizationID string) ([]Role, error) {
	rows, err := s.DB.Query(ctx, roleColumns+" WHERE "+scopeClause+" ORDER BY r.name", organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, organizationID, roleID string) (Role, error) {
	return scanRole(s.DB.QueryRow(ctx, roleColumns+" WHERE "+scopeClause+" AND r.id::text = $2", organizationID, roleID))
}

func (s *Store) Create(ctx context.Context, organizationID string, role Role) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO roles (organization_id, name, description)
    VALUES (NULLIF($1, '')::uuid, $2, $3)
    RETURNING id
  `, organizationID, role.Name, role.Description).Scan(&id)
	return id, err
}

func (s *Store) Update(ctx context.Context, organizationID, roleID string, role Role) (bool, error) {
	cmd, err := s.DB.Exec(ctx, `
    UPDATE roles r
    SET name = $3, description = $4, updated_at = now()
    WHERE `+scopeClause+` AND r.id::text = $2
  `, organizationID, roleID, role.Name, role.Description)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// Delete removes a role of the scope. A role of another scope reads as
// missing even when users hold it.
func (s *Store) Delete(ctx context.Context, organizationID, roleID string) (bool, error) {
	var deleted bool
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT r.id FROM roles r WHERE `+scopeClause+` AND r.id::text = $2 FOR UPDATE`, organizationID, roleID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		var assigned bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role_id = $1)`, id).Scan(&assigned); err != nil {
			return err
		}
		if assigned {
			return ErrRoleInUse
		}
		if _, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *Store) Permissions(ctx context.Context, organizationID, roleID string) ([]access.Permission, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT rp.module_code, rp.can_read, rp.can_write, rp.can_update, rp.can_delete, rp.can_approve, rp.can_export
    FROM role_permissions rp
    JOIN roles r ON r.id = rp.role_id
    WHERE `+scopeClause+` AND rp.role_id::text = $2
    ORDER BY rp.module_code
  `, organizationID, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (access.Permission, error) {
		var perm access.Permission
		var code string
		err := row.Scan(&code, &perm.CanRead, &perm.CanWrite, &perm.CanUpdate, &perm.CanDelete, &perm.CanApprove, &perm.CanExport)
		perm.ModuleCode = modules.Code(code)
		return perm, err
	})
}

// ReplacePermissions swaps the whole matrix of a role in one transaction.
func (s *Store) ReplacePermissions(ctx context.Context, organizationID, roleID string, perms []access.Permission) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	if err := tx.QueryRow(ctx, `SELECT r.id FROM roles r WHERE `+scopeClause+` AND r.id::text = $2 FOR UPDATE`, organizationID, roleID).Scan(&id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
		return err
	}
	for _, perm := range perms {
		if _, err := tx.Exec(ctx, `
      INSERT INTO role_permissions (role_id, module_code, can_read, can_write, can_update, can_delete, can_approve, can_export)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, id, string(perm.ModuleCode), perm.CanRead, perm.CanWrite, perm.CanUpdate, perm.CanDelete, perm.CanApprove, perm.CanExport); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE roles SET updated_at = now() WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
