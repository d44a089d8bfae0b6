package recruitment

import (
	"errors"
	"strings"
	"time"
)

const (
	OpeningDraft  = "draft"
	OpeningOpen   = "open"
	OpeningClosed = "closed"

	CandidateApplied  = "applied"
	CandidateApproved = "approved"
	CandidateRejected = "rejected"
)

var OpeningStatuses = []string{OpeningDraft, OpeningOpen, OpeningClosed}

var (
	ErrOpeningClosed  = errors.New("job opening is not accepting candidates")
	ErrAlreadyDecided = errors.New("candidate has already been decided")
)

type Opening struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DepartmentID string    `json:"departmentId"`
	Description  string    `json:"description"`
	Openings     int       `json:"openings"`
	Status       string    `json:"status"`
	Candidates   int       `json:"candidates"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (o *Opening) Normalize() {
	o.Title = strings.TrimSpace(o.Title)
	o.Description = strings.TrimSpace(o.Description)
	o.DepartmentID = strings.TrimSpace(o.DepartmentID)
	o.Status = strings.ToLower(strings.TrimSpace(o.Status))
	if o.Status == "" {
		o.Status = OpeningOpen
	}
	if o.Openings <= 0 {
		o.Openings = 1
	}
}

type Candidate struct {
	ID        string     `json:"id"`
	OpeningID string     `json:"openingId"`
	FullName  string     `json:"fullName"`
	Email     string     `json:"email"`
	Status    string     `json:"status"`
	DecidedBy string     `json:"decidedBy,omitempty"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (c *Candidate) Normalize() {
	c.FullName = strings.TrimSpace(c.FullName)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.OpeningID = strings.TrimSpace(c.OpeningID)
}
