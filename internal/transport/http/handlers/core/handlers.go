package corehandler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/core"
	"hradmin/internal/domain/modules"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type EmployeeStore interface {
	GetEmployee(ctx context.Context, organizationID, employeeID string) (core.Employee, error)
	ListEmployees(ctx context.Context, organizationID string) ([]core.Employee, error)
	CreateEmployee(ctx context.Context, organizationID string, emp core.Employee) (string, error)
	UpdateEmployee(ctx context.Context, organizationID, employeeID string, emp core.Employee) (bool, error)
	DeleteEmployee(ctx context.Context, organizationID, employeeID string) (bool, error)
}

type DepartmentStore interface {
	ListDepartments(ctx context.Context, organizationID string) ([]core.Department, error)
	CreateDepartment(ctx context.Context, organizationID string, dep core.Department) (string, error)
	UpdateDepartment(ctx context.Context, organizationID, departmentID string, dep core.Department) (bool, error)
	DeleteDepartment(ctx context.Context, organizationID, departmentID string) (bool, error)
}

type Handler struct {
	Employees   EmployeeStore
	Departments DepartmentStore
	Audit       audit.Recorder
	Guard       middleware.Guard
}

func NewHandler(store *core.Store, rec audit.Recorder, guard middleware.Guard) *Handler {
	return &Handler{Employees: store, Departments: store, Audit: rec, Guard: guard}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.With(h.Guard(modules.Employees, access.ActionRead)).Get("/", h.handleListEmployees)
		r.With(h.Guard(modules.Employees, access.ActionWrite)).Post("/", h.handleCreateEmployee)
		r.Route("/{employeeID}", func(r chi.Router) {
			r.With(h.Guard(modules.Employees, access.ActionRead)).Get("/", h.handleGetEmployee)
			r.With(h.Guard(modules.Employees, access.ActionUpdate)).Put("/", h.handleUpdateEmployee)
			r.With(h.Guard(modules.Employees, access.ActionDelete)).Delete("/", h.handleDeleteEmployee)
		})
	})
	r.Route("/departments", func(r chi.Router) {
		r.With(h.Guard(modules.Departments, access.ActionRead)).Get("/", h.handleListDepartments)
		r.With(h.Guard(modules.Departments, access.ActionWrite)).Post("/", h.handleCreateDepartment)
		r.With(h.Guard(modules.Departments, access.ActionUpdate)).Put("/{departmentID}", h.handleUpdateDepartment)
		r.With(h.Guard(modules.Departments, access.ActionDelete)).Delete("/{departmentID}", h.handleDeleteDepartment)
	})
}

type employeePayload struct {
	UserID         string `json:"userId"`
	EmployeeNumber string `json:"employeeNumber"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	JobTitle       string `json:"jobTitle"`
	DepartmentID   string `json:"departmentId"`
	ManagerID      string `json:"managerId"`
	StartDate      string `json:"startDate"`
	Status         string `json:"status"`
}

// employee validates the payload and answers 400 when it is not usable.
func (p employeePayload) employee(w http.ResponseWriter, r *http.Request) (core.Employee, bool) {
	emp := core.Employee{
		UserID:         strings.TrimSpace(p.UserID),
		EmployeeNumber: p.EmployeeNumber,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		Phone:          strings.TrimSpace(p.Phone),
		JobTitle:       strings.TrimSpace(p.JobTitle),
		DepartmentID:   strings.TrimSpace(p.DepartmentID),
		ManagerID:      strings.TrimSpace(p.ManagerID),
		Status:         strings.ToLower(strings.TrimSpace(p.Status)),
	}
	emp.Normalize()

	v := shared.NewValidator()
	v.Required("firstName", emp.FirstName, "is required")
	v.Required("lastName", emp.LastName, "is required")
	v.Required("email", emp.Email, "is required")
	v.Email("email", emp.Email)
	v.ID("userId", emp.UserID)
	v.ID("departmentId", emp.DepartmentID)
	v.ID("managerId", emp.ManagerID)
	v.Enum("status", emp.Status, core.EmployeeStatuses, "must be one of active, inactive, terminated")
	if strings.TrimSpace(p.StartDate) != "" {
		if start, ok := v.Date("startDate", p.StartDate); ok {
			start = start.UTC().Truncate(24 * time.Hour)
			emp.StartDate = &start
		}
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return core.Employee{}, false
	}
	return emp, true
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Employees.ListEmployees(r.Context(), middleware.OrganizationID(r.Context()))
	if err != nil {
		shared.StoreError(w, r, err, "employee", "employee_list_failed")
		return
	}
	if employees == nil {
		employees = []core.Employee{}
	}
	api.Success(w, employees, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Employees.GetEmployee(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "employeeID"))
	if err != nil {
		shared.StoreError(w, r, err, "employee", "employee_fetch_failed")
		return
	}
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var payload employeePayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	emp, ok := payload.employee(w, r)
	if !ok {
		return
	}

	id, err := h.Employees.CreateEmployee(r.Context(), middleware.OrganizationID(r.Context()), emp)
	if err != nil {
		shared.StoreError(w, r, err, "employee", "employee_create_failed")
		return
	}
	emp.ID = id
	shared.Audit(r, h.Audit, "core.employee.create", "employee", id, nil, emp)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	organizationID := middleware.OrganizationID(r.Context())
	employeeID := chi.URLParam(r, "employeeID")

	var payload employeePayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	emp, ok := payload.employee(w, r)
	if !ok {
		return
	}
	if emp.ManagerID == employeeID {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "managerId", Reason: "must not reference the employee itself"}})
		return
	}

	before, err := h.Employees.GetEmployee(r.Context(), organizationID, employeeID)
	if err != nil {
		shared.StoreError(w, r, err, "employee", "employee_update_failed")
		return
	}
	updated, err := h.Employees.UpdateEmployee(r.Context(), organizationID, employeeID, emp)
	if err != nil {
		shared.StoreError(w, r, err, "employee", "employee_update_failed")
		return
	}
	if !updated {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", middleware.GetRequestID(r.Context()))
		return
	}
	emp.ID = employeeID
	shared.Audit(r, h.Audit, "core.employee.update", "employee", employeeID, before, emp)
	api.Success(w, map[string]string{"id": employeeID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	deleted, err := h.Employees.DeleteEmployee(r.Context(), middleware.OrganizationID(r.Context()), employeeID)
	if err != nil {
		shared.StoreError(w, r, err, "employee", "employee_delete_failed")
		return
	}
	if !deleted {
		api.Fail(w, http.StatusNotFound, "not_found", "employee not found", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, "core.employee.delete", "employee", employeeID, nil, nil)
	api.SuccessMessage(w, map[string]string{"id": employeeID}, "employee deleted", middleware.GetRequestID(r.Context()))
}

type departmentPayload struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	ParentID string `json:"parentId"`
}

func (p departmentPayload) department(w http.ResponseWriter, r *http.Request) (core.Department, bool) {
	dep := core.Department{
		Name:     strings.TrimSpace(p.Name),
		Code:     strings.ToUpper(strings.TrimSpace(p.Code)),
		ParentID: strings.TrimSpace(p.ParentID),
	}
	v := shared.NewValidator()
	v.Required("name", dep.Name, "is required")
	v.ID("parentId", dep.ParentID)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return core.Department{}, false
	}
	return dep, true
}

func (h *Handler) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.Departments.ListDepartments(r.Context(), middleware.OrganizationID(r.Context()))
	if err != nil {
		shared.StoreError(w, r, err, "department", "department_list_failed")
		return
	}
	if departments == nil {
		departments = []core.Department{}
	}
	api.Success(w, departments, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var payload departmentPayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	dep, ok := payload.department(w, r)
	if !ok {
		return
	}
	id, err := h.Departments.CreateDepartment(r.Context(), middleware.OrganizationID(r.Context()), dep)
	if err != nil {
		shared.StoreError(w, r, err, "department", "department_create_failed")
		return
	}
	dep.ID = id
	shared.Audit(r, h.Audit, "core.department.create", "department", id, nil, dep)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	departmentID := chi.URLParam(r, "departmentID")
	var payload departmentPayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	dep, ok := payload.department(w, r)
	if !ok {
		return
	}
	if dep.ParentID == departmentID {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "parentId", Reason: "must not reference the department itself"}})
		return
	}
	updated, err := h.Departments.UpdateDepartment(r.Context(), middleware.OrganizationID(r.Context()), departmentID, dep)
	if err != nil {
		shared.StoreError(w, r, err, "department", "department_update_failed")
		return
	}
	if !updated {
		api.Fail(w, http.StatusNotFound, "not_found", "department not found", middleware.GetRequestID(r.Context()))
		return
	}
	dep.ID = departmentID
	shared.Audit(r, h.Audit, "core.department.update", "department", departmentID, nil, dep)
	api.Success(w, map[string]string{"id": departmentID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	departmentID := chi.URLParam(r, "departmentID")
	deleted, err := h.Departments.DeleteDepartment(r.Context(), middleware.OrganizationID(r.Context()), departmentID)
	if errors.Is(err, core.ErrDepartmentInUse) {
		api.Fail(w, http.StatusConflict, "department_in_use", "department has assigned employees", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		shared.StoreError(w, r, err, "department", "department_delete_failed")
		return
	}
	if !deleted {
		api.Fail(w, http.StatusNotFound, "not_found", "department not found", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, "core.department.delete", "department", departmentID, nil, nil)
	api.SuccessMessage(w, map[string]string{"id": departmentID}, "department deleted", middleware.GetRequestID(r.Context()))
}
