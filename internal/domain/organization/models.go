package organization

import (
	"regexp"
	"strings"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusExpired:
		return true
	}
	return false
}

type Organization struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Slug                   string     `json:"slug"`
	Email                  string     `json:"email"`
	Phone                  string     `json:"phone"`
	Address                string     `json:"address"`
	IsActive               bool       `json:"isActive"`
	Status                 Status     `json:"status"`
	SubscriptionPlan       string     `json:"subscriptionPlan"`
	SubscriptionExpiryDate *time.Time `json:"subscriptionExpiryDate,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// Expired reports whether the subscription has lapsed at now. A missing
// expiry date means the subscription does not expire.
func (o Organization) Expired(now time.Time) bool {
	if o.Status == StatusExpired {
		return true
	}
	return o.SubscriptionExpiryDate != nil && o.SubscriptionExpiryDate.Before(now)
}

// ModuleState is one catalog module as configured for an organization.
type ModuleState struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	IsCore  bool   `json:"isCore"`
	Enabled bool   `json:"enabled"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

func NormalizeSlug(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func ValidSlug(slug string) bool {
	return len(slug) >= 2 && len(slug) <= 63 && slugPattern.MatchString(slug)
}

// reservedSlugs collide with non-tenant route prefixes under /api/v1.
var reservedSlugs = map[string]struct{}{
	"auth":     {},
	"platform": {},
	"healthz":  {},
	"metrics":  {},
}

func ReservedSlug(slug string) bool {
	_, ok := reservedSlugs[slug]
	return ok
}
