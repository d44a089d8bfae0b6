package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBaseQueryScopesToOrganization(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", "org-1", Filter{Action: "role.update"})
	assert.Equal(t, "SELECT COUNT(1) FROM audit_events WHERE organization_id = $1 AND action = $2", query)
	assert.Equal(t, []any{"org-1", "role.update"}, args)
}

func TestBuildBaseQueryPlatformEvents(t *testing.T) {
	support := true
	query, args := buildBaseQuery("SELECT id", "", Filter{ActorUser: "u1", Impersonating: &support})
	assert.Equal(t, "SELECT id FROM audit_events WHERE organization_id IS NULL AND actor_user_id::text = $1 AND is_impersonating = $2", query)
	assert.Equal(t, []any{"u1", true}, args)
}

func TestMarshalOptional(t *testing.T) {
	raw, err := marshalOptional(nil)
	assert.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = marshalOptional(map[string]string{"name": "HR"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"name":"HR"}`, string(raw))
}
