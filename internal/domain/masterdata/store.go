package masterdata

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

const recordColumns = `
    SELECT id, kind, code, name, COALESCE(parent_id::text, ''), attributes, is_active, created_at, updated_at
    FROM master_records`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var kind string
	err := row.Scan(&rec.ID, &kind, &rec.Code, &rec.Name, &rec.ParentID, &rec.Attributes, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt)
	rec.Kind = Kind(kind)
	return rec, err
}

func (s *Store) List(ctx context.Context, organizationID string, kind Kind) ([]Record, error) {
	rows, err := s.DB.Query(ctx, recordColumns+`
    WHERE organization_id = $1 AND kind = $2
    ORDER BY name`, organizationID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, organizationID, id string) (Record, error) {
	return scanRecord(s.DB.QueryRow(ctx, recordColumns+" WHERE organization_id = $1 AND id::text = $2", organizationID, id))
}

func (s *Store) Create(ctx context.Context, organizationID string, rec Record) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO master_records (organization_id, kind, code, name, parent_id, attributes, is_active)
    VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7)
    RETURNING id
  `, organizationID, string(rec.Kind), rec.Code, rec.Name, rec.ParentID, rec.Attributes, rec.IsActive).Scan(&id)
	return id, err
}

func (s *Store) Update(ctx context.Context, organizationID, id string, rec Record) (bool, error) {
	cmd, err := s.DB.Exec(ctx, `
    UPDATE master_records
    SET code = $1, name = $2, parent_id = NULLIF($3, '')::uuid, attributes = $4, is_active = $5, updated_at = now()
    WHERE organization_id = $6 AND kind = $7 AND id::text = $8
  `, rec.Code, rec.Name, rec.ParentID, rec.Attributes, rec.IsActive, organizationID, string(rec.Kind), id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) Delete(ctx context.Context, organizationID string, kind Kind, id string) (bool, error) {
	cmd, err := s.DB.Exec(ctx, `
    DELETE FROM master_records
    WHERE organization_id = $1 AND kind = $2 AND id::text = $3
  `, organizationID, string(kind), id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
