package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"hradmin/internal/domain/auth"
	"hradmin/internal/platform/requestctx"
	"hradmin/internal/transport/http/api"
)

type ctxKey string

const (
	ctxKeyUser   ctxKey = "user"
	ctxKeyTenant ctxKey = "tenant"
)

// SessionChecker reports whether the session behind a token is still open.
type SessionChecker interface {
	SessionActive(ctx context.Context, user auth.UserContext) (bool, error)
}

// Auth decodes a bearer token into the request context. Requests without a
// usable token pass through anonymously; RequireAuth rejects them. A session
// store failure is a 500 so clients keep their token through an outage.
func Auth(secret string, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			user := claims.User()

			if sessions != nil {
				active, err := sessions.SessionActive(r.Context(), user)
				if err != nil {
					slog.Error("session check failed", "userId", user.UserID, "err", err, "requestId", GetRequestID(r.Context()))
					api.Fail(w, http.StatusInternalServerError, "session_error", "failed to verify session", GetRequestID(r.Context()))
					return
				}
				if !active {
					next.ServeHTTP(w, r)
					return
				}
			}

			requestctx.FieldsFrom(r.Context()).SetUser(user.UserID)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}
