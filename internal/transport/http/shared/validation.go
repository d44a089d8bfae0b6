package shared

import (
	"cmp"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"hradmin/internal/domain/core"
	"hradmin/internal/transport/http/api"
)

// ValidationIssue is one rejected field in a validation_error response.
type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Validator collects field issues so a handler can report them all at once.
// The zero value is ready to use.
type Validator struct {
	issues []ValidationIssue
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Add(field, reason string) {
	reason = strings.TrimSpace(reason)
	if v == nil || reason == "" {
		return
	}
	v.issues = append(v.issues, ValidationIssue{Field: strings.TrimSpace(field), Reason: reason})
}

// Check adds reason for field unless ok holds.
func (v *Validator) Check(ok bool, field, reason string) {
	if !ok {
		v.Add(field, reason)
	}
}

func (v *Validator) Required(field, value, reason string) {
	v.Check(strings.TrimSpace(value) != "", field, reason)
}

// Email accepts an empty value; pair it with Required when the address is
// mandatory.
func (v *Validator) Email(field, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	v.Check(core.ValidEmail(value), field, "must be a valid email address")
}

// Enum accepts an empty value or any of allowed, case-insensitively.
func (v *Validator) Enum(field, value string, allowed []string, reason string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	v.Check(slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(value, strings.TrimSpace(a))
	}), field, reason)
}

// ID accepts an empty value or a canonical UUID.
func (v *Validator) ID(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	_, err := uuid.Parse(value)
	v.Check(err == nil, field, "must be a valid id")
}

var dateLayouts = []string{time.DateOnly, time.RFC3339}

// Date parses raw as YYYY-MM-DD, or RFC3339 for clients that send timestamps.
func (v *Validator) Date(field, raw string) (time.Time, bool) {
	if raw = strings.TrimSpace(raw); raw != "" {
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed, true
			}
		}
	}
	v.Add(field, "must be a valid date in YYYY-MM-DD format")
	return time.Time{}, false
}

func (v *Validator) HasIssues() bool {
	return v != nil && len(v.issues) > 0
}

// Issues returns a sorted copy so responses are stable regardless of check
// order.
func (v *Validator) Issues() []ValidationIssue {
	if !v.HasIssues() {
		return nil
	}
	out := slices.Clone(v.issues)
	slices.SortStableFunc(out, func(a, b ValidationIssue) int {
		if c := cmp.Compare(a.Field, b.Field); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})
	return out
}

// Reject writes the validation_error response when issues were collected and
// reports whether it did.
func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	if !v.HasIssues() {
		return false
	}
	FailValidation(w, requestID, v.Issues())
	return true
}

func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed",
		map[string]any{"fields": issues}, requestID)
}
