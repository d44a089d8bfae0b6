package leave

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNameRequired = errors.New("leave type name is required")
	ErrCodeRequired = errors.New("leave type code is required")
	ErrInvalidDays  = errors.New("days per year must be between 0 and 366")
)

type LeaveType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	DaysPerYear float64   `json:"daysPerYear"`
	IsPaid      bool      `json:"isPaid"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (t *LeaveType) Normalize() error {
	t.Name = strings.TrimSpace(t.Name)
	t.Code = strings.ToUpper(strings.TrimSpace(t.Code))
	switch {
	case t.Name == "":
		return ErrNameRequired
	case t.Code == "":
		return ErrCodeRequired
	case t.DaysPerYear < 0 || t.DaysPerYear > 366:
		return ErrInvalidDays
	}
	return nil
}
