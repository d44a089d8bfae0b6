package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	List(ctx context.Context, organizationID string, kind Kind) ([]Record, error)
	Get(ctx context.Context, organizationID, id string) (Record, error)
	Create(ctx context.Context, organizationID string, rec Record) (string, error)
	Update(ctx context.Context, organizationID, id string, rec Record) (bool, error)
	Delete(ctx context.Context, organizationID string, kind Kind, id string) (bool, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context, organizationID string, kind Kind) ([]Record, error) {
	return s.repo.List(ctx, organizationID, kind)
}

// Get returns the record id of the given kind. A record of another kind is
// reported as missing.
func (s *Service) Get(ctx context.Context, organizationID string, kind Kind, id string) (Record, error) {
	rec, err := s.repo.Get(ctx, organizationID, id)
	if err != nil {
		return Record{}, err
	}
	if rec.Kind != kind {
		return Record{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (s *Service) Create(ctx context.Context, organizationID string, rec Record) (string, error) {
	if err := s.checkParent(ctx, organizationID, rec); err != nil {
		return "", err
	}
	return s.repo.Create(ctx, organizationID, rec)
}

func (s *Service) Update(ctx context.Context, organizationID, id string, rec Record) (bool, error) {
	if err := s.checkParent(ctx, organizationID, rec); err != nil {
		return false, err
	}
	return s.repo.Update(ctx, organizationID, id, rec)
}

func (s *Service) Delete(ctx context.Context, organizationID string, kind Kind, id string) (bool, error) {
	return s.repo.Delete(ctx, organizationID, kind, id)
}

func (s *Service) Export(ctx context.Context, organizationID string, kind Kind) (Export, error) {
	records, err := s.repo.List(ctx, organizationID, kind)
	if err != nil {
		return Export{}, err
	}
	if records == nil {
		records = []Record{}
	}
	return Export{Kind: kind, ExportedAt: s.now().UTC(), Count: len(records), Records: records}, nil
}

// checkParent enforces the country > state > city hierarchy inside one
// organization.
func (s *Service) checkParent(ctx context.Context, organizationID string, rec Record) error {
	parentKind, needsParent := rec.Kind.Parent()
	if !needsParent {
		return nil
	}
	if rec.ParentID == "" {
		return ErrParentRequired
	}
	parent, err := s.repo.Get(ctx, organizationID, rec.ParentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrParentRequired
	}
	if err != nil {
		return err
	}
	if parent.Kind != parentKind {
		return ErrParentWrongKind
	}
	return nil
}
