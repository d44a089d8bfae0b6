package organization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpired(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, Organization{Status: StatusActive}.Expired(now))
	assert.False(t, Organization{Status: StatusActive, SubscriptionExpiryDate: &future}.Expired(now))
	assert.True(t, Organization{Status: StatusActive, SubscriptionExpiryDate: &past}.Expired(now))
	assert.True(t, Organization{Status: StatusExpired}.Expired(now))
}

func TestSlugRules(t *testing.T) {
	assert.Equal(t, "acme", NormalizeSlug("  ACME "))
	for _, slug := range []string{"acme", "acme-corp", "a1"} {
		assert.True(t, ValidSlug(slug), slug)
	}
	for _, slug := range []string{"", "a", "Acme", "acme_corp", "-acme", "acme-", "acme--corp"} {
		assert.False(t, ValidSlug(slug), slug)
	}
	assert.True(t, ReservedSlug("platform"))
	assert.False(t, ReservedSlug("acme"))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusSuspended.Valid())
	assert.False(t, Status("paused").Valid())
}
