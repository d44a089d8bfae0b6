package leave

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const typeColumns = `
    SELECT id, name, code, days_per_year::float8, is_paid, created_at, updated_at
    FROM leave_types`

func scanType(row pgx.Row) (LeaveType, error) {
	var t LeaveType
	err := row.Scan(&t.ID, &t.Name, &t.Code, &t.DaysPerYear, &t.IsPaid, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) ListTypes(ctx context.Context, organizationID string) ([]LeaveType, error) {
	rows, err := s.DB.Query(ctx, typeColumns+" WHERE organization_id = $1 ORDER BY name", organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaveType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetType(ctx context.Context, organizationID, id string) (LeaveType, error) {
	return scanType(s.DB.QueryRow(ctx, typeColumns+" WHERE organization_id = $1 AND id::text = $2", organizationID, id))
}

func (s *Store) CreateType(ctx context.Context, organizationID string, t LeaveType) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO leave_types (organization_id, name, code, days_per_year, is_paid)
    VALUES ($1, $2, $3, $4, $5)
    RETURNING id
  `, organizationID, t.Name, t.Code, t.DaysPerYear, t.IsPaid).Scan(&id)
	return id, err
}

func (s *Store) UpdateType(ctx context.Context, organizationID, id string, t LeaveType) (bool, error) {
	cmd, err := s.DB.Exec(ctx, `
    UPDATE leave_types
    SET name = $1, code = $2, days_per_year = $3, is_paid = $4, updated_at = now()
    WHERE organization_id = $5 AND id::text = $6
  `, t.Name, t.Code, t.DaysPerYear, t.IsPaid, organizationID, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) DeleteType(ctx context.Context, organizationID, id string) (bool, error) {
	cmd, err := s.DB.Exec(ctx, `DELETE FROM leave_types WHERE organization_id = $1 AND id::text = $2`, organizationID, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
