package recruitment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const openingColumns = `
    SELECT o.id, o.title, COALESCE(o.department_id::text, ''), o.description, o.openings, o.status,
           (SELECT COUNT(1) FROM candidates c WHERE c.opening_id = o.id),
           o.created_at, o.updated_at
    FROM job_openings o`

func scanOpening(row pgx.Row) (Opening, error) {
	var o Opening
	err := row.Scan(&o.ID, &o.Title, &o.DepartmentID, &o.Description, &o.Openings, &o.Status, &o.Candidates, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *Store) ListOpenings(ctx context.Context, organizationID string) ([]Opening, error) {
	rows, err := s.DB.Query(ctx, openingColumns+" WHERE o.organization_id = $1 ORDER BY o.created_at DESC", organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Opening
	for rows.Next() {
		o, err := scanOpening(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) GetOpening(ctx context.Context, organizationID, id string) (Opening, error) {
	return scanOpening(s.DB.QueryRow(ctx, openingColumns+" WHERE o.organization_id = $1 AND o.id::text = $2", organizationID, id))
}

func (s *Store) CreateOpening(ctx context.Context, organizationID string, o Opening) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO job_openings (organization_id, title, department_id, description, openings, status)
    VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6)
    RETURNING id
  `, organizationID, o.Title, o.DepartmentID, o.Description, o.Openings, o.Status).Scan(&id)
	return id, err
}

func (s *Store) DepartmentInOrganization(ctx context.Context, organizationID, departmentID string) (bool, error) {
	var owned bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM departments WHERE organization_id = $1 AND id::text = $2)
  `, organizationID, departmentID).Scan(&owned)
	return owned, err
}

func (s *Store) UpdateOpening(ctx context.Context, organizationID, id string, o Opening) (bool, error) {
	cmd, err := s.DB.Exec(ctx, `
    UPDATE job_openings
    SET title = $1, department_id = NULLIF($2, '')::uuid, description = $3, openings = $4, status = $5, updated_at = now()
    WHERE organization_id = $6 AND id::text = $7
  `, o.Title, o.DepartmentID, o.Description, o.Openings, o.Status, organizationID, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) DeleteOpening(ctx context.Context, organizationID, id string) (bool, error) {
	cmd, err := s.DB.Exec(ctx, `DELETE FROM job_openings WHERE organization_id = $1 AND id::text = $2`, organizationID, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

const candidateColumns = `
    SELECT id, opening_id, full_name, email, status, COALESCE(decided_by::text, ''), decided_at, created_at
    FROM candidates`

func scanCandidate(row pgx.Row) (Candidate, error) {
	var c Candidate
	err := row.Scan(&c.ID, &c.OpeningID, &c.FullName, &c.Email, &c.Status, &c.DecidedBy, &c.DecidedAt, &c.CreatedAt)
	return c, err
}

// ListCandidates returns candidates of the organization, optionally limited to
// one opening.
func (s *Store) ListCandidates(ctx context.Context, organizationID, openingID string) ([]Candidate, error) {
	rows, err := s.DB.Query(ctx, candidateColumns+`
    WHERE organization_id = $1 AND (NULLIF($2, '') IS NULL OR opening_id::text = $2)
    ORDER BY created_at DESC`, organizationID, openingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCandidate(ctx context.Context, organizationID, id string) (Candidate, error) {
	return scanCandidate(s.DB.QueryRow(ctx, candidateColumns+" WHERE organization_id = $1 AND id::text = $2", organizationID, id))
}

func (s *Store) CreateCandidate(ctx context.Context, organizationID string, c Candidate) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO candidates (organization_id, opening_id, full_name, email)
    VALUES ($1, $2, $3, $4)
    RETURNING id
  `, organizationID, c.OpeningID, c.FullName, c.Email).Scan(&id)
	return id, err
}

// Decide moves an applied candidate to status. It fails with ErrAlreadyDecided
// when the candidate left the applied state.
func (s *Store) Decide(ctx context.Context, organizationID, id, status, actorID string) (Candidate, error) {
	c, err := scanCandidate(s.DB.QueryRow(ctx, `
    UPDATE candidates
    SET status = $1, decided_by = NULLIF($2, '')::uuid, decided_at = now()
    WHERE organization_id = $3 AND id::text = $4 AND status = $5
    RETURNING id, opening_id, full_name, email, status, COALESCE(decided_by::text, ''), decided_at, created_at
  `, status, actorID, organizationID, id, CandidateApplied))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetCandidate(ctx, organizationID, id); getErr == nil {
			return Candidate{}, ErrAlreadyDecided
		}
	}
	return c, err
}
