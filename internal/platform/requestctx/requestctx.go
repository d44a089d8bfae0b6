package requestctx

import (
	"context"
	"sync"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	fieldsKey    ctxKey = "log_fields"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

// Fields collects identity learned deeper in the middleware chain so the
// request logger, which runs first, can report it once the handler returns.
type Fields struct {
	mu            sync.Mutex
	userID        string
	orgSlug       string
	impersonating bool
}

func WithFields(ctx context.Context) (context.Context, *Fields) {
	f := &Fields{}
	return context.WithValue(ctx, fieldsKey, f), f
}

// FieldsFrom returns the collector of ctx, or nil. All methods accept a nil
// receiver.
func FieldsFrom(ctx context.Context) *Fields {
	f, _ := ctx.Value(fieldsKey).(*Fields)
	return f
}

func (f *Fields) SetUser(userID string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = userID
}

func (f *Fields) SetOrganization(slug string, impersonating bool) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgSlug = slug
	f.impersonating = impersonating
}

// Attrs returns slog key/value pairs for the fields that were set.
func (f *Fields) Attrs() []any {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var attrs []any
	if f.userID != "" {
		attrs = append(attrs, "userId", f.userID)
	}
	if f.orgSlug != "" {
		attrs = append(attrs, "org", f.orgSlug)
		if f.impersonating {
			attrs = append(attrs, "impersonating", true)
		}
	}
	return attrs
}
