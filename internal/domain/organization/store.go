package organization

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const selectColumns = `
    SELECT id, name, slug, email, phone, address, is_active, status, subscription_plan,
           subscription_expiry_date, created_at, updated_at
    FROM organizations`

func scanOrganization(row pgx.Row) (Organization, error) {
	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.Email, &org.Phone, &org.Address, &org.IsActive,
		&org.Status, &org.SubscriptionPlan, &org.SubscriptionExpiryDate, &org.CreatedAt, &org.UpdatedAt)
	return org, err
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (Organization, error) {
	return scanOrganization(s.DB.QueryRow(ctx, selectColumns+" WHERE slug = $1", slug))
}

func (s *Store) Get(ctx context.Context, id string) (Organization, error) {
	return scanOrganization(s.DB.QueryRow(ctx, selectColumns+" WHERE id::text = $1", id))
}

func (s *Store) List(ctx context.Context) ([]Organization, error) {
	rows, err := s.DB.Query(ctx, selectColumns+" ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, org Organization) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO organizations (name, slug, email, phone, address, is_active, status, subscription_plan, subscription_expiry_date)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id
  `, org.Name, org.Slug, org.Email, org.Phone, org.Address, org.IsActive, org.Status, org.SubscriptionPlan, org.SubscriptionExpiryDate).Scan(&id)
	return id, err
}

// Update writes every mutable column. Slug changes are not supported.
func (s *Store) Update(ctx context.Context, id string, org Organization) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE organizations
    SET name = $1, email = $2, phone = $3, address = $4, is_active = $5, status = $6,
        subscription_plan = $7, subscription_expiry_date = $8, updated_at = now()
    WHERE id::text = $9
  `, org.Name, org.Email, org.Phone, org.Address, org.IsActive, org.Status, org.SubscriptionPlan, org.SubscriptionExpiryDate, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateProfile is the subset an organization may edit about itself.
func (s *Store) UpdateProfile(ctx context.Context, id string, org Organization) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE organizations
    SET name = $1, email = $2, phone = $3, address = $4, updated_at = now()
    WHERE id::text = $5
  `, org.Name, org.Email, org.Phone, org.Address, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.DB.Exec(ctx, "DELETE FROM organizations WHERE id::text = $1", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ModuleStates(ctx context.Context, id string) ([]ModuleState, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT m.code, m.name, m.is_core, m.is_core OR COALESCE(om.is_enabled, false)
    FROM org_modules m
    LEFT JOIN organization_modules om ON om.module_code = m.code AND om.organization_id = $1
    WHERE m.scope = 'org'
    ORDER BY m.code
  `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModuleState
	for rows.Next() {
		var st ModuleState
		if err := rows.Scan(&st.Code, &st.Name, &st.IsCore, &st.Enabled); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) SetModuleEnabled(ctx context.Context, id, code string, enabled bool) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO organization_modules (organization_id, module_code, is_enabled)
    VALUES ($1,$2,$3)
    ON CONFLICT (organization_id, module_code)
    DO UPDATE SET is_enabled = EXCLUDED.is_enabled, updated_at = now()
  `, id, code, enabled)
	return err
}

// ExpireLapsed moves active organizations past their expiry date to expired.
func (s *Store) ExpireLapsed(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    UPDATE organizations
    SET status = $1, updated_at = now()
    WHERE status = $2 AND subscription_expiry_date IS NOT NULL AND subscription_expiry_date < $3
    RETURNING slug
  `, StatusExpired, StatusActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}
