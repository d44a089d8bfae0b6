package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/auth"
	"hradmin/internal/platform/requestctx"
	"hradmin/internal/transport/http/api"
)

// ImpersonateHeader names the organization a super admin is supporting.
const ImpersonateHeader = "X-Impersonate-Org"

// OrgSlugParam is the chi URL parameter carrying the tenant slug.
const OrgSlugParam = "orgSlug"

type TenantResolver interface {
	ResolveTenant(ctx context.Context, slug string, user auth.UserContext, impersonateSlug string) (access.TenantContext, error)
}

// TenantContext resolves the organization named in the URL and admits the
// caller into it. Must run after RequireAuth.
func TenantContext(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				writeAccessError(w, r, access.ErrUnauthenticated, "tenant")
				return
			}

			tenant, err := resolver.ResolveTenant(r.Context(), chi.URLParam(r, OrgSlugParam), user, r.Header.Get(ImpersonateHeader))
			if err != nil {
				writeAccessError(w, r, err, "tenant")
				return
			}

			if tenant.IsImpersonating {
				slog.Info("support mode request",
					"userId", user.UserID,
					"organizationId", tenant.OrganizationID,
					"method", r.Method,
					"path", r.URL.Path,
					"requestId", GetRequestID(r.Context()),
				)
			}

			requestctx.FieldsFrom(r.Context()).SetOrganization(tenant.Organization.Slug, tenant.IsImpersonating)
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}

func WithTenant(ctx context.Context, tenant access.TenantContext) context.Context {
	return context.WithValue(ctx, ctxKeyTenant, &tenant)
}

func GetTenant(ctx context.Context) (*access.TenantContext, bool) {
	tenant, ok := ctx.Value(ctxKeyTenant).(*access.TenantContext)
	return tenant, ok && tenant != nil
}

// writeAccessError maps policy denials to their status. Anything else is a
// backend failure and is never reported as a denial.
func writeAccessError(w http.ResponseWriter, r *http.Request, err error, stage string) {
	requestID := GetRequestID(r.Context())
	if denial, ok := access.AsDenial(err); ok {
		api.Fail(w, denial.Status, denial.Code, denial.Message, requestID)
		return
	}
	slog.Error("access check failed",
		"stage", stage,
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
		"requestId", requestID,
	)
	if stage == "tenant" {
		api.Fail(w, http.StatusInternalServerError, "tenant_error", "organization lookup failed", requestID)
		return
	}
	api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", requestID)
}

// OrganizationID is the tenant of an organization route, or "" on platform
// routes.
func OrganizationID(ctx context.Context) string {
	if tenant, ok := GetTenant(ctx); ok {
		return tenant.OrganizationID
	}
	return ""
}
