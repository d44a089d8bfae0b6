package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/auth"
)

type memKeys struct {
	mu       sync.Mutex
	records  map[IdempotencyKey]StoredResponse
	released []IdempotencyKey
}

func newMemKeys() *memKeys {
	return &memKeys{records: map[IdempotencyKey]StoredResponse{}}
}

func (m *memKeys) Reserve(_ context.Context, key IdempotencyKey, requestHash string) (StoredResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.records[key]; ok {
		return stored, false, nil
	}
	m.records[key] = StoredResponse{RequestHash: requestHash}
	return StoredResponse{}, true, nil
}

func (m *memKeys) Complete(_ context.Context, key IdempotencyKey, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.records[key]
	stored.Status = status
	stored.Body = bytes.Clone(body)
	m.records[key] = stored
	return nil
}

func (m *memKeys) Release(_ context.Context, key IdempotencyKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	m.released = append(m.released, key)
	return nil
}

// countingCreate echoes the body back with 201 and counts invocations.
type countingCreate struct {
	calls  int
	status int
}

func (c *countingCreate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.calls++
	body, _ := io.ReadAll(r.Body)
	status := c.status
	if status == 0 {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func keyedRequest(method, key, body string) *http.Request {
	ctx := WithUser(context.Background(), auth.UserContext{OrganizationID: "org-1", UserID: "hr-1"})
	ctx = WithTenant(ctx, access.TenantContext{OrganizationID: "org-1"})
	req := httptest.NewRequest(method, "/api/v1/acme/employees", strings.NewReader(body)).WithContext(ctx)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := newMemKeys()
	next := &countingCreate{}
	h := Idempotency(store)(next)

	first := serveStatus(h, keyedRequest(http.MethodPost, "create-1", `{"name":"Ada"}`))
	require.Equal(t, http.StatusCreated, first.Code)

	second := serveStatus(h, keyedRequest(http.MethodPost, "create-1", `{"name":"Ada"}`))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, `{"name":"Ada"}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, next.calls)

	stored := store.records[IdempotencyKey{OrganizationID: "org-1", UserID: "hr-1", Endpoint: "POST /api/v1/acme/employees", Key: "create-1"}]
	assert.Equal(t, http.StatusCreated, stored.Status)
}

func TestIdempotencyRejectsReusedKeyWithDifferentBody(t *testing.T) {
	next := &countingCreate{}
	h := Idempotency(newMemKeys())(next)

	serveStatus(h, keyedRequest(http.MethodPost, "create-1", `{"name":"Ada"}`))
	rec := serveStatus(h, keyedRequest(http.MethodPost, "create-1", `{"name":"Grace"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"idempotency_conflict"`)
	assert.Equal(t, 1, next.calls)
}

func TestIdempotencyRejectsKeyStillRunning(t *testing.T) {
	store := newMemKeys()
	req := keyedRequest(http.MethodPost, "create-1", `{}`)
	_, reserved, err := store.Reserve(context.Background(), IdempotencyKey{
		OrganizationID: "org-1", UserID: "hr-1", Endpoint: "POST /api/v1/acme/employees", Key: "create-1",
	}, RequestHash(http.MethodPost, "/api/v1/acme/employees", []byte(`{}`)))
	require.NoError(t, err)
	require.True(t, reserved)

	next := &countingCreate{}
	rec := serveStatus(Idempotency(store)(next), req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"idempotency_in_progress"`)
	assert.Zero(t, next.calls)
}

func TestIdempotencyReleasesKeyAfterFailure(t *testing.T) {
	store := newMemKeys()
	next := &countingCreate{status: http.StatusBadRequest}
	h := Idempotency(store)(next)

	assert.Equal(t, http.StatusBadRequest, serveStatus(h, keyedRequest(http.MethodPost, "create-1", `{}`)).Code)
	require.Len(t, store.released, 1)
	assert.Empty(t, store.records)

	next.status = http.StatusCreated
	assert.Equal(t, http.StatusCreated, serveStatus(h, keyedRequest(http.MethodPost, "create-1", `{}`)).Code)
	assert.Equal(t, 2, next.calls)
}

func TestIdempotencyScopesKeysToCaller(t *testing.T) {
	store := newMemKeys()
	next := &countingCreate{}
	h := Idempotency(store)(next)

	serveStatus(h, keyedRequest(http.MethodPost, "create-1", `{}`))
	other := keyedRequest(http.MethodPost, "create-1", `{}`)
	other = other.WithContext(WithUser(other.Context(), auth.UserContext{OrganizationID: "org-1", UserID: "hr-2"}))
	assert.Equal(t, http.StatusCreated, serveStatus(h, other).Code)
	assert.Equal(t, 2, next.calls)
}

func TestIdempotencyPassthrough(t *testing.T) {
	store := newMemKeys()
	next := &countingCreate{}
	h := Idempotency(store)(next)

	serveStatus(h, keyedRequest(http.MethodPost, "", `{}`))
	serveStatus(h, keyedRequest(http.MethodPost, "", `{}`))
	serveStatus(h, keyedRequest(http.MethodPut, "update-1", `{}`))
	serveStatus(h, keyedRequest(http.MethodPut, "update-1", `{}`))

	anonymous := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`))
	anonymous.Header.Set(IdempotencyHeader, "login-1")
	serveStatus(h, anonymous)

	assert.Equal(t, 5, next.calls)
	assert.Empty(t, store.records)

	nilStore := &countingCreate{}
	serveStatus(Idempotency(nil)(nilStore), keyedRequest(http.MethodPost, "create-1", `{}`))
	assert.Equal(t, 1, nilStore.calls)
}

func TestIdempotencyRejectsLongKey(t *testing.T) {
	next := &countingCreate{}
	rec := serveStatus(Idempotency(newMemKeys())(next), keyedRequest(http.MethodPost, strings.Repeat("k", 201), `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"invalid_idempotency_key"`)
	assert.Zero(t, next.calls)
}

func TestIdempotencyOversizedBody(t *testing.T) {
	next := &countingCreate{}
	h := BodyLimit(1024)(Idempotency(newMemKeys())(next))
	rec := serveStatus(h, keyedRequest(http.MethodPost, "create-1", `{"note":"`+strings.Repeat("x", 2048)+`"}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, next.calls)
}

func TestRequestHashCoversPathAndBody(t *testing.T) {
	base := RequestHash(http.MethodPost, "/a", []byte(`{}`))
	assert.Equal(t, base, RequestHash(http.MethodPost, "/a", []byte(`{}`)))
	assert.NotEqual(t, base, RequestHash(http.MethodPost, "/b", []byte(`{}`)))
	assert.NotEqual(t, base, RequestHash(http.MethodPost, "/a", []byte(`{"x":1}`)))
}
