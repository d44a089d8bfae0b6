package audithandler

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
	"hradmin/internal/transport/http/handlers/handlertest"
)

type recordingReader struct {
	organizationID string
	filter         audit.Filter
	details        bool
	limit, offset  int
	calls          int
}

func (r *recordingReader) Count(_ context.Context, _ string, _ audit.Filter) (int, error) {
	return 7, nil
}

func (r *recordingReader) List(_ context.Context, organizationID string, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error) {
	r.calls++
	r.organizationID, r.filter, r.details, r.limit, r.offset = organizationID, filter, includeDetails, limit, offset
	return nil, nil
}

var tenant = access.TenantContext{
	OrganizationID: "org-1",
	Organization:   organization.Organization{ID: "org-1", Slug: "acme", IsActive: true, Status: organization.StatusActive},
}

var admin = auth.UserContext{UserID: "u1", OrganizationID: "org-1", RoleID: "admin"}

func newRouter(events EventReader) chi.Router {
	r := chi.NewRouter()
	r.Route("/audit", NewHandler(events, handlertest.AllowAll, modules.Organizations).RegisterRoutes)
	return r
}

func TestListEventsPassesFiltersAndWindow(t *testing.T) {
	events := &recordingReader{}
	target := "/audit/?limit=1000&offset=20&action=role.update&actorUserId=0b7c3c1e-8d0a-4a57-9a33-5f0f7f4b2c11&impersonating=true&includeDetails=true"
	rec, env := handlertest.Serve(t, newRouter(events), handlertest.OrgRequest(http.MethodGet, target, nil, admin, tenant))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.Equal(t, "7", rec.Header().Get("X-Total-Count"))

	assert.Equal(t, "org-1", events.organizationID)
	assert.Equal(t, 500, events.limit)
	assert.Equal(t, 20, events.offset)
	assert.True(t, events.details)
	assert.Equal(t, "role.update", events.filter.Action)
	require.NotNil(t, events.filter.Impersonating)
	assert.True(t, *events.filter.Impersonating)
}

func TestListEventsRejectsMalformedQuery(t *testing.T) {
	for _, target := range []string{
		"/audit/?limit=-5",
		"/audit/?impersonating=sometimes",
		"/audit/?actorUserId=not-a-user",
	} {
		events := &recordingReader{}
		rec, env := handlertest.Serve(t, newRouter(events), handlertest.OrgRequest(http.MethodGet, target, nil, admin, tenant))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "validation_error", env.Error.Code, target)
		assert.Zero(t, events.calls, target)
	}
}
