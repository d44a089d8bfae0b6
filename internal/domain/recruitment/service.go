package recruitment

import (
	"context"

	"hradmin/internal/domain/core"
)

type Repository interface {
	ListOpenings(ctx context.Context, organizationID string) ([]Opening, error)
	GetOpening(ctx context.Context, organizationID, id string) (Opening, error)
	CreateOpening(ctx context.Context, organizationID string, o Opening) (string, error)
	UpdateOpening(ctx context.Context, organizationID, id string, o Opening) (bool, error)
	DeleteOpening(ctx context.Context, organizationID, id string) (bool, error)
	DepartmentInOrganization(ctx context.Context, organizationID, departmentID string) (bool, error)
	ListCandidates(ctx context.Context, organizationID, openingID string) ([]Candidate, error)
	CreateCandidate(ctx context.Context, organizationID string, c Candidate) (string, error)
	Decide(ctx context.Context, organizationID, id, status, actorID string) (Candidate, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListOpenings(ctx context.Context, organizationID string) ([]Opening, error) {
	return s.repo.ListOpenings(ctx, organizationID)
}

func (s *Service) GetOpening(ctx context.Context, organizationID, id string) (Opening, error) {
	return s.repo.GetOpening(ctx, organizationID, id)
}

func (s *Service) CreateOpening(ctx context.Context, organizationID string, o Opening) (string, error) {
	if err := s.checkDepartment(ctx, organizationID, o); err != nil {
		return "", err
	}
	return s.repo.CreateOpening(ctx, organizationID, o)
}

func (s *Service) UpdateOpening(ctx context.Context, organizationID, id string, o Opening) (bool, error) {
	if err := s.checkDepartment(ctx, organizationID, o); err != nil {
		return false, err
	}
	return s.repo.UpdateOpening(ctx, organizationID, id, o)
}

// checkDepartment keeps openings inside the departments of their own
// organization.
func (s *Service) checkDepartment(ctx context.Context, organizationID string, o Opening) error {
	if o.DepartmentID == "" {
		return nil
	}
	owned, err := s.repo.DepartmentInOrganization(ctx, organizationID, o.DepartmentID)
	if err != nil {
		return err
	}
	if !owned {
		return &core.ReferenceError{Field: "departmentId"}
	}
	return nil
}

func (s *Service) DeleteOpening(ctx context.Context, organizationID, id string) (bool, error) {
	return s.repo.DeleteOpening(ctx, organizationID, id)
}

func (s *Service) ListCandidates(ctx context.Context, organizationID, openingID string) ([]Candidate, error) {
	return s.repo.ListCandidates(ctx, organizationID, openingID)
}

// AddCandidate attaches a candidate to an opening that is accepting
// applications.
func (s *Service) AddCandidate(ctx context.Context, organizationID string, c Candidate) (string, error) {
	opening, err := s.repo.GetOpening(ctx, organizationID, c.OpeningID)
	if err != nil {
		return "", err
	}
	if opening.Status != OpeningOpen {
		return "", ErrOpeningClosed
	}
	return s.repo.CreateCandidate(ctx, organizationID, c)
}

func (s *Service) Approve(ctx context.Context, organizationID, candidateID, actorID string) (Candidate, error) {
	return s.repo.Decide(ctx, organizationID, candidateID, CandidateApproved, actorID)
}

func (s *Service) Reject(ctx context.Context, organizationID, candidateID, actorID string) (Candidate, error) {
	return s.repo.Decide(ctx, organizationID, candidateID, CandidateRejected, actorID)
}
