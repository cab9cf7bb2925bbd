package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5"

	"nomina/internal/platform/querier"
	"nomina/internal/transport/http/api"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// IdempotencyStore remembers the response data of a keyed request so a
// retried close or recalculation replays instead of running twice.
type IdempotencyStore interface {
	Check(ctx context.Context, organizationID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, organizationID, userID, endpoint, key, requestHash string, response json.RawMessage) error
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type PGIdempotencyStore struct {
	db querier.Querier
}

func NewIdempotencyStore(db querier.Querier) *PGIdempotencyStore {
	return &PGIdempotencyStore{db: db}
}

func (s *PGIdempotencyStore) Check(ctx context.Context, organizationID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE organization_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
  `, organizationID, userID, key, endpoint).Scan(&storedHash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (s *PGIdempotencyStore) Save(ctx context.Context, organizationID, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (organization_id, user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (organization_id, user_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, organizationID, userID, key, endpoint, requestHash, response)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

type idempotencyEntry struct {
	hash     string
	response json.RawMessage
}

// MemoryIdempotencyStore backs the in-memory deployment mode.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: map[string]idempotencyEntry{}}
}

func memoryKey(organizationID, userID, endpoint, key string) string {
	return organizationID + "\x00" + userID + "\x00" + endpoint + "\x00" + key
}

func (s *MemoryIdempotencyStore) Check(_ context.Context, organizationID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[memoryKey(organizationID, userID, endpoint, key)]
	if !ok {
		return nil, false, nil
	}
	if entry.hash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return entry.response, true, nil
}

func (s *MemoryIdempotencyStore) Save(_ context.Context, organizationID, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey(organizationID, userID, endpoint, key)
	if entry, ok := s.entries[k]; ok && entry.hash != requestHash {
		return ErrIdempotencyConflict
	}
	s.entries[k] = idempotencyEntry{hash: requestHash, response: append(json.RawMessage(nil), response...)}
	return nil
}

type bufferedWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

// Idempotency replays the stored data of a successful request that carried
// the same Idempotency-Key, path and body. Requests without the header, or
// without an authenticated user, run normally.
func Idempotency(store IdempotencyStore, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			user, ok := GetUser(r.Context())
			if store == nil || key == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			reqID := GetRequestID(r.Context())

			body, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", reqID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := RequestHash(append([]byte(r.URL.Path+"\n"), body...))

			stored, found, err := store.Check(r.Context(), user.OrganizationID, user.UserID, endpoint, key, hash)
			if errors.Is(err, ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different request", reqID)
				return
			}
			if err != nil {
				slog.WarnContext(r.Context(), "idempotency check failed", "endpoint", endpoint, "err", err)
			}
			if found {
				w.Header().Set("Idempotent-Replayed", "true")
				api.Success(w, stored, reqID)
				return
			}

			recorder := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			if recorder.status < 200 || recorder.status >= 300 {
				return
			}
			var env struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(recorder.body.Bytes(), &env); err != nil {
				slog.WarnContext(r.Context(), "idempotency response decode failed", "endpoint", endpoint, "err", err)
				return
			}
			if err := store.Save(r.Context(), user.OrganizationID, user.UserID, endpoint, key, hash, env.Data); err != nil {
				slog.WarnContext(r.Context(), "idempotency save failed", "endpoint", endpoint, "err", err)
			}
		})
	}
}
