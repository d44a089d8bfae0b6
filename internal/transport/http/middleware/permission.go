package middleware

import (
	"context"
	"net/http"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/modules"
)

type Authorizer interface {
	Registry() *modules.Registry
	AuthorizeOrg(ctx context.Context, user auth.UserContext, tenant *access.TenantContext, code modules.Code, action access.Action) error
	AuthorizePlatform(ctx context.Context, user auth.UserContext, code modules.Code, action access.Action) error
}

// CheckPermission guards a platform route. The module code is resolved when
// the route is registered, so a misspelled code fails at startup.
func CheckPermission(authz Authorizer, code modules.Code, action access.Action) func(http.Handler) http.Handler {
	authz.Registry().MustLookup(code)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				writeAccessError(w, r, access.ErrUnauthenticated, "permission")
				return
			}
			if err := authz.AuthorizePlatform(r.Context(), user, code, action); err != nil {
				writeAccessError(w, r, err, "permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CheckAnyPermission(authz Authorizer, code modules.Code) func(http.Handler) http.Handler {
	return CheckPermission(authz, code, access.ActionAny)
}

// CheckOrgPermission guards an organization route. Must run after
// TenantContext.
func CheckOrgPermission(authz Authorizer, code modules.Code, action access.Action) func(http.Handler) http.Handler {
	authz.Registry().MustLookup(code)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				writeAccessError(w, r, access.ErrUnauthenticated, "permission")
				return
			}
			tenant, _ := GetTenant(r.Context())
			if err := authz.AuthorizeOrg(r.Context(), user, tenant, code, action); err != nil {
				writeAccessError(w, r, err, "permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CheckAnyOrgPermission(authz Authorizer, code modules.Code) func(http.Handler) http.Handler {
	return CheckOrgPermission(authz, code, access.ActionAny)
}

// Guard builds the permission middleware for one route family, so handlers
// shared between organization and platform routes stay scope agnostic.
type Guard func(code modules.Code, action access.Action) func(http.Handler) http.Handler

func OrgGuard(authz Authorizer) Guard {
	return func(code modules.Code, action access.Action) func(http.Handler) http.Handler {
		return CheckOrgPermission(authz, code, action)
	}
}

func PlatformGuard(authz Authorizer) Guard {
	return func(code modules.Code, action access.Action) func(http.Handler) http.Handler {
		return CheckPermission(authz, code, action)
	}
}
