package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

const (
	EmployeeStatusActive     = "active"
	EmployeeStatusInactive   = "inactive"
	EmployeeStatusTerminated = "terminated"
)

var EmployeeStatuses = []string{EmployeeStatusActive, EmployeeStatusInactive, EmployeeStatusTerminated}

var ErrDepartmentInUse = errors.New("department has assigned employees")

// ReferenceError reports an id in a payload that points at a row outside the
// caller's organization, or at no row at all.
type ReferenceError struct {
	Field string
}

func (e *ReferenceError) Error() string {
	return e.Field + " does not reference a record of this organization"
}

type Employee struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	EmployeeNumber string     `json:"employeeNumber"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	JobTitle       string     `json:"jobTitle"`
	DepartmentID   string     `json:"departmentId"`
	ManagerID      string     `json:"managerId"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Normalize trims input and fills defaults before validation.
func (e *Employee) Normalize() {
	e.FirstName = strings.TrimSpace(e.FirstName)
	e.LastName = strings.TrimSpace(e.LastName)
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	e.EmployeeNumber = strings.TrimSpace(e.EmployeeNumber)
	if e.Status == "" {
		e.Status = EmployeeStatusActive
	}
}

func ValidEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	return err == nil && addr.Address == value
}

type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	ParentID  string    `json:"parentId"`
	CreatedAt time.Time `json:"createdAt"`
}
