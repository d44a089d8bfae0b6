package core

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

const employeeColumns = `
    SELECT id,
           COALESCE(user_id::text, ''),
           COALESCE(employee_number, ''),
           first_name, last_name, email, phone, job_title,
           COALESCE(department_id::text, ''),
           COALESCE(manager_id::text, ''),
           start_date, status, created_at, updated_at
    FROM employees`

func scanEmployee(row pgx.Row) (Employee, error) {
	var emp Employee
	err := row.Scan(&emp.ID, &emp.UserID, &emp.EmployeeNumber, &emp.FirstName, &emp.LastName, &emp.Email,
		&emp.Phone, &emp.JobTitle, &emp.DepartmentID, &emp.ManagerID, &emp.StartDate, &emp.Status,
		&emp.CreatedAt, &emp.UpdatedAt)
	return emp, err
}

func (s *Store) GetEmployee(ctx context.Context, organizationID, employeeID string) (Employee, error) {
	return scanEmployee(s.DB.QueryRow(ctx, employeeColumns+" WHERE organization_id = $1 AND id::text = $2", organizationID, employeeID))
}

func (s *Store) ListEmployees(ctx context.Context, organizationID string) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, employeeColumns+" WHERE organization_id = $1 ORDER BY last_name, first_name", organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (s *Store) CreateEmployee(ctx context.Context, organizationID string, emp Employee) (string, error) {
	if err := s.checkReferences(ctx, organizationID,
		reference{"departmentId", "departments", emp.DepartmentID},
		reference{"managerId", "employees", emp.ManagerID},
		reference{"userId", "users", emp.UserID},
	); err != nil {
		return "", err
	}
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO employees (organization_id, user_id, employee_number, first_name, last_name, email, phone,
      job_title, department_id, manager_id, start_date, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    RETURNING id
  `,
		organizationID, nullIfEmpty(emp.UserID), nullIfEmpty(emp.EmployeeNumber), emp.FirstName, emp.LastName, emp.Email,
		emp.Phone, emp.JobTitle, nullIfEmpty(emp.DepartmentID), nullIfEmpty(emp.ManagerID), emp.StartDate, emp.Status,
	).Scan(&id)
	return id, err
}

func (s *Store) UpdateEmployee(ctx context.Context, organizationID, employeeID string, emp Employee) (bool, error) {
	if err := s.checkReferences(ctx, organizationID,
		reference{"departmentId", "departments", emp.DepartmentID},
		reference{"managerId", "employees", emp.ManagerID},
	); err != nil {
		return false, err
	}
	cmd, err := s.DB.Exec(ctx, `
    UPDATE employees
    SET employee_number = $1,
        first_name = $2,
        last_name = $3,
        email = $4,
        phone = $5,
        job_title = $6,
        department_id = $7,
        manager_id = $8,
        start_date = $9,
        status = $10,
        updated_at = now()
    WHERE organization_id = $11 AND id::text = $12
  `,
		nullIfEmpty(emp.EmployeeNumber), emp.FirstName, emp.LastName, emp.Email, emp.Phone, emp.JobTitle,
		nullIfEmpty(emp.DepartmentID), nullIfEmpty(emp.ManagerID), emp.StartDate, emp.Status,
		organizationID, employeeID,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) DeleteEmployee(ctx context.Context, organizationID, employeeID string) (bool, error) {
	cmd, err := s.DB.Exec(ctx, `DELETE FROM employees WHERE organization_id = $1 AND id::text = $2`, organizationID, employeeID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) ListDepartments(ctx context.Context, organizationID string) ([]Department, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, code, COALESCE(parent_id::text, ''), created_at
    FROM departments
    WHERE organization_id = $1
    ORDER BY name
  `, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var dep Department
		if err := rows.Scan(&dep.ID, &dep.Name, &dep.Code, &dep.ParentID, &dep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

func (s *Store) CreateDepartment(ctx context.Context, organizationID string, dep Department) (string, error) {
	if err := s.checkReferences(ctx, organizationID, reference{"parentId", "departments", dep.ParentID}); err != nil {
		return "", err
	}
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO departments (organization_id, name, code, parent_id)
    VALUES ($1,$2,$3,$4)
    RETURNING id
  `, organizationID, dep.Name, dep.Code, nullIfEmpty(dep.ParentID)).Scan(&id)
	return id, err
}

func (s *Store) UpdateDepartment(ctx context.Context, organizationID, departmentID string, dep Department) (bool, error) {
	if err := s.checkReferences(ctx, organizationID, reference{"parentId", "departments", dep.ParentID}); err != nil {
		return false, err
	}
	cmd, err := s.DB.Exec(ctx, `
    UPDATE departments
    SET name = $1, code = $2, parent_id = $3
    WHERE organization_id = $4 AND id::text = $5
  `, dep.Name, dep.Code, nullIfEmpty(dep.ParentID), organizationID, departmentID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// DeleteDepartment refuses while employees are assigned.
func (s *Store) DeleteDepartment(ctx context.Context, organizationID, departmentID string) (bool, error) {
	var assigned bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (SELECT 1 FROM employees WHERE organization_id = $1 AND department_id::text = $2)
  `, organizationID, departmentID).Scan(&assigned); err != nil {
		return false, err
	}
	if assigned {
		return false, ErrDepartmentInUse
	}
	cmd, err := s.DB.Exec(ctx, `DELETE FROM departments WHERE organization_id = $1 AND id::text = $2`, organizationID, departmentID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// reference names a row in one of the organization-owned tables.
type reference struct {
	field string
	table string
	id    string
}

// checkReferences fails with a ReferenceError for the first set id that is not
// owned by the organization. Foreign keys alone accept rows of any tenant.
func (s *Store) checkReferences(ctx context.Context, organizationID string, refs ...reference) error {
	for _, ref := range refs {
		if ref.id == "" {
			continue
		}
		var owned bool
		err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+ref.table+` WHERE organization_id = $1 AND id::text = $2)`,
			organizationID, ref.id).Scan(&owned)
		if err != nil {
			return err
		}
		if !owned {
			return &ReferenceError{Field: ref.field}
		}
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// Summary is the headline numbers of the organization dashboard.
type Summary struct {
	Employees       int            `json:"employees"`
	ByStatus        map[string]int `json:"employeesByStatus"`
	Departments     int            `json:"departments"`
	NewThisMonth    int            `json:"newThisMonth"`
	UnassignedCount int            `json:"withoutDepartment"`
}

func (s *Store) Summary(ctx context.Context, organizationID string) (Summary, error) {
	sum := Summary{ByStatus: map[string]int{}}
	rows, err := s.DB.Query(ctx, `
    SELECT status, COUNT(*)
    FROM employees
    WHERE organization_id = $1
    GROUP BY status
  `, organizationID)
	if err != nil {
		return Summary{}, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return Summary{}, err
		}
		sum.ByStatus[status] = n
		sum.Employees += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	err = s.DB.QueryRow(ctx, `
    SELECT
      (SELECT COUNT(*) FROM departments WHERE organization_id = $1),
      (SELECT COUNT(*) FROM employees WHERE organization_id = $1 AND created_at >= date_trunc('month', now())),
      (SELECT COUNT(*) FROM employees WHERE organization_id = $1 AND department_id IS NULL)
  `, organizationID).Scan(&sum.Departments, &sum.NewThisMonth, &sum.UnassignedCount)
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}
