package access

import (
	"fmt"
	"strings"

	"hradmin/internal/domain/modules"
)

type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
	// ActionAny passes when any of the six actions is granted.
	ActionAny Action = "any"
)

var Actions = []Action{ActionRead, ActionWrite, ActionUpdate, ActionDelete, ActionApprove, ActionExport}

func ParseAction(raw string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(raw)))
	if action == ActionAny {
		return action, nil
	}
	for _, known := range Actions {
		if action == known {
			return action, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", raw)
}

// Permission is one row of the role permission matrix.
type Permission struct {
	ModuleCode modules.Code `json:"moduleCode"`
	CanRead    bool         `json:"canRead"`
	CanWrite   bool         `json:"canWrite"`
	CanUpdate  bool         `json:"canUpdate"`
	CanDelete  bool         `json:"canDelete"`
	CanApprove bool         `json:"canApprove"`
	CanExport  bool         `json:"canExport"`
}

func FullPermission(code modules.Code) Permission {
	return Permission{
		ModuleCode: code,
		CanRead:    true,
		CanWrite:   true,
		CanUpdate:  true,
		CanDelete:  true,
		CanApprove: true,
		CanExport:  true,
	}
}

func (p Permission) Allows(action Action) bool {
	switch action {
	case ActionRead:
		return p.CanRead
	case ActionWrite:
		return p.CanWrite
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	case ActionApprove:
		return p.CanApprove
	case ActionExport:
		return p.CanExport
	case ActionAny:
		return p.CanRead || p.CanWrite || p.CanUpdate || p.CanDelete || p.CanApprove || p.CanExport
	}
	return false
}

// SupportMode strips the actions that are never available while a super
// admin is impersonating an organization.
func (p Permission) SupportMode() Permission {
	p.CanDelete = false
	p.CanExport = false
	return p
}

// RestrictedInSupportMode reports whether action is denied to impersonating
// super admins regardless of their role.
func RestrictedInSupportMode(action Action) bool {
	return action == ActionDelete || action == ActionExport
}
