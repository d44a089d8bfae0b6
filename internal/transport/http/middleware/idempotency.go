package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/transport/http/api"
)

const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 200

// pendingTimeout is how long a reservation whose request never finished
// blocks the key before another request may claim it.
const pendingTimeout = 2 * time.Minute

// IdempotencyKey scopes a client key to the caller, the organization and the
// endpoint it was sent to.
type IdempotencyKey struct {
	OrganizationID string
	UserID         string
	Endpoint       string
	Key            string
}

// StoredResponse is what a key holds. Status stays 0 while the first request
// is still running.
type StoredResponse struct {
	RequestHash string
	Status      int
	Body        []byte
}

type IdempotencyStore interface {
	// Reserve claims key for requestHash. When the key is taken it returns
	// the stored record and false.
	Reserve(ctx context.Context, key IdempotencyKey, requestHash string) (StoredResponse, bool, error)
	Complete(ctx context.Context, key IdempotencyKey, status int, body []byte) error
	Release(ctx context.Context, key IdempotencyKey) error
}

func RequestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method + " " + path + "\n"))
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// Idempotency makes POST requests that carry an Idempotency-Key safe to retry.
// The first successful response is stored and replayed for the same caller,
// key and request; a failed response frees the key again.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			user, authenticated := GetUser(r.Context())
			if r.Method != http.MethodPost || raw == "" || !authenticated {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(raw) > maxIdempotencyKeyLen {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key must be at most 200 characters", requestID)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request payload too large", requestID)
					return
				}
				api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := IdempotencyKey{
				OrganizationID: OrganizationID(r.Context()),
				UserID:         user.UserID,
				Endpoint:       r.Method + " " + r.URL.Path,
				Key:            raw,
			}
			hash := RequestHash(r.Method, r.URL.Path, body)
			stored, reserved, err := store.Reserve(r.Context(), key, hash)
			if err != nil {
				slog.Error("idempotency reserve failed", "endpoint", key.Endpoint, "err", err, "requestId", requestID)
				api.Fail(w, http.StatusInternalServerError, "idempotency_error", "failed to process request", requestID)
				return
			}
			if !reserved {
				replay(w, stored, hash, requestID)
				return
			}

			capture := &responseCapture{statusRecorder: statusRecorder{ResponseWriter: w, status: http.StatusOK}}
			next.ServeHTTP(capture, r)

			ctx := context.WithoutCancel(r.Context())
			if capture.status >= 200 && capture.status < 300 {
				err = store.Complete(ctx, key, capture.status, capture.body.Bytes())
			} else {
				err = store.Release(ctx, key)
			}
			if err != nil {
				slog.Warn("idempotency save failed", "endpoint", key.Endpoint, "err", err, "requestId", requestID)
			}
		})
	}
}

func replay(w http.ResponseWriter, stored StoredResponse, hash, requestID string) {
	switch {
	case stored.RequestHash != hash:
		api.Fail(w, http.StatusConflict, "idempotency_conflict", "Idempotency-Key was already used for a different request", requestID)
	case stored.Status == 0:
		api.Fail(w, http.StatusConflict, "idempotency_in_progress", "a request with this Idempotency-Key is still running", requestID)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

type responseCapture struct {
	statusRecorder
	body bytes.Buffer
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.statusRecorder.Write(b)
}

// PGIdempotencyStore keeps keys in idempotency_keys.
type PGIdempotencyStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewIdempotencyStore(db *pgxpool.Pool) *PGIdempotencyStore {
	return &PGIdempotencyStore{db: db, now: time.Now}
}

func (s *PGIdempotencyStore) Reserve(ctx context.Context, key IdempotencyKey, requestHash string) (StoredResponse, bool, error) {
	var claimed bool
	err := s.db.QueryRow(ctx, `
    INSERT INTO idempotency_keys (organization_id, user_id, endpoint, key, request_hash)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (organization_id, user_id, endpoint, key) DO UPDATE
      SET request_hash = EXCLUDED.request_hash, created_at = now()
      WHERE idempotency_keys.status_code = 0 AND idempotency_keys.created_at < $6
    RETURNING true
  `, key.OrganizationID, key.UserID, key.Endpoint, key.Key, requestHash, s.now().Add(-pendingTimeout)).Scan(&claimed)
	if err == nil {
		return StoredResponse{}, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return StoredResponse{}, false, err
	}

	var stored StoredResponse
	err = s.db.QueryRow(ctx, `
    SELECT request_hash, status_code, COALESCE(response_body, ''::bytea)
    FROM idempotency_keys
    WHERE organization_id = $1 AND user_id = $2 AND endpoint = $3 AND key = $4
  `, key.OrganizationID, key.UserID, key.Endpoint, key.Key).Scan(&stored.RequestHash, &stored.Status, &stored.Body)
	return stored, false, err
}

func (s *PGIdempotencyStore) Complete(ctx context.Context, key IdempotencyKey, status int, body []byte) error {
	_, err := s.db.Exec(ctx, `
    UPDATE idempotency_keys
    SET status_code = $5, response_body = $6
    WHERE organization_id = $1 AND user_id = $2 AND endpoint = $3 AND key = $4
  `, key.OrganizationID, key.UserID, key.Endpoint, key.Key, status, body)
	return err
}

func (s *PGIdempotencyStore) Release(ctx context.Context, key IdempotencyKey) error {
	_, err := s.db.Exec(ctx, `
    DELETE FROM idempotency_keys
    WHERE organization_id = $1 AND user_id = $2 AND endpoint = $3 AND key = $4 AND status_code = 0
  `, key.OrganizationID, key.UserID, key.Endpoint, key.Key)
	return err
}

// DeleteBefore drops keys created before cutoff and reports how many went.
func (s *PGIdempotencyStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
