package recruitment

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/core"
)

type fakeRepo struct {
	openings    map[string]Opening
	candidates  map[string]Candidate
	departments map[string]bool
	created     int
}

func (f *fakeRepo) ListOpenings(context.Context, string) ([]Opening, error) { return nil, nil }

func (f *fakeRepo) GetOpening(_ context.Context, _ string, id string) (Opening, error) {
	o, ok := f.openings[id]
	if !ok {
		return Opening{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeRepo) CreateOpening(context.Context, string, Opening) (string, error) {
	f.created++
	return "o-new", nil
}

func (f *fakeRepo) DepartmentInOrganization(_ context.Context, _, departmentID string) (bool, error) {
	return f.departments[departmentID], nil
}

func (f *fakeRepo) UpdateOpening(context.Context, string, string, Opening) (bool, error) {
	return true, nil
}

func (f *fakeRepo) DeleteOpening(context.Context, string, string) (bool, error) { return true, nil }

func (f *fakeRepo) ListCandidates(context.Context, string, string) ([]Candidate, error) {
	return nil, nil
}

func (f *fakeRepo) CreateCandidate(_ context.Context, _ string, c Candidate) (string, error) {
	c.ID = "c-new"
	c.Status = CandidateApplied
	f.candidates[c.ID] = c
	return c.ID, nil
}

func (f *fakeRepo) Decide(_ context.Context, _ string, id, status, actorID string) (Candidate, error) {
	c, ok := f.candidates[id]
	if !ok {
		return Candidate{}, pgx.ErrNoRows
	}
	if c.Status != CandidateApplied {
		return Candidate{}, ErrAlreadyDecided
	}
	c.Status = status
	c.DecidedBy = actorID
	f.candidates[id] = c
	return c, nil
}

func newFake() *fakeRepo {
	return &fakeRepo{
		openings: map[string]Opening{
			"open":   {ID: "open", Status: OpeningOpen},
			"closed": {ID: "closed", Status: OpeningClosed},
		},
		candidates:  map[string]Candidate{},
		departments: map[string]bool{"dept-own": true},
	}
}

func TestAddCandidateRequiresOpenOpening(t *testing.T) {
	svc := NewService(newFake())
	ctx := context.Background()

	_, err := svc.AddCandidate(ctx, "org-1", Candidate{OpeningID: "closed", FullName: "A"})
	assert.ErrorIs(t, err, ErrOpeningClosed)

	_, err = svc.AddCandidate(ctx, "org-1", Candidate{OpeningID: "missing"})
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	id, err := svc.AddCandidate(ctx, "org-1", Candidate{OpeningID: "open", FullName: "A"})
	require.NoError(t, err)
	assert.Equal(t, "c-new", id)
}

func TestDecisionsAreFinal(t *testing.T) {
	repo := newFake()
	svc := NewService(repo)
	ctx := context.Background()
	id, err := svc.AddCandidate(ctx, "org-1", Candidate{OpeningID: "open", FullName: "A"})
	require.NoError(t, err)

	c, err := svc.Approve(ctx, "org-1", id, "u1")
	require.NoError(t, err)
	assert.Equal(t, CandidateApproved, c.Status)
	assert.Equal(t, "u1", c.DecidedBy)

	_, err = svc.Reject(ctx, "org-1", id, "u1")
	assert.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestOpeningNormalize(t *testing.T) {
	o := Opening{Title: " Engineer ", Status: " "}
	o.Normalize()
	assert.Equal(t, "Engineer", o.Title)
	assert.Equal(t, OpeningOpen, o.Status)
	assert.Equal(t, 1, o.Openings)
}

func TestOpeningDepartmentMustBelongToOrganization(t *testing.T) {
	repo := newFake()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateOpening(ctx, "org-1", Opening{Title: "Engineer", DepartmentID: "dept-other"})
	var refErr *core.ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "departmentId", refErr.Field)
	assert.Zero(t, repo.created)

	_, err = svc.UpdateOpening(ctx, "org-1", "open", Opening{Title: "Engineer", DepartmentID: "dept-other"})
	assert.ErrorAs(t, err, &refErr)

	_, err = svc.CreateOpening(ctx, "org-1", Opening{Title: "Engineer", DepartmentID: "dept-own"})
	require.NoError(t, err)
	_, err = svc.CreateOpening(ctx, "org-1", Opening{Title: "Engineer"})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.created)
}
