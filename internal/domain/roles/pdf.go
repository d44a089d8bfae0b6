package roles

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/modules"
)

var matrixColumns = []struct {
	title  string
	action access.Action
}{
	{"Read", access.ActionRead},
	{"Write", access.ActionWrite},
	{"Update", access.ActionUpdate},
	{"Delete", access.ActionDelete},
	{"Approve", access.ActionApprove},
	{"Export", access.ActionExport},
}

// RenderMatrixPDF prints a role's permission matrix as a one-table report.
func RenderMatrixPDF(role Role, perms []access.Permission, registry *modules.Registry) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Role permissions: %s", role.Name))
	pdf.Ln(10)
	if role.Description != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, 8, role.Description)
		pdf.Ln(10)
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(80, 8, "Module", "1", 0, "L", false, 0, "")
	for _, col := range matrixColumns {
		pdf.CellFormat(30, 8, col.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 11)
	for _, perm := range perms {
		name := string(perm.ModuleCode)
		if mod, err := registry.Lookup(string(perm.ModuleCode)); err == nil {
			name = mod.Name
		}
		pdf.CellFormat(80, 8, name, "1", 0, "L", false, 0, "")
		for _, col := range matrixColumns {
			mark := "-"
			if perm.Allows(col.action) {
				mark = "Yes"
			}
			pdf.CellFormat(30, 8, mark, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
