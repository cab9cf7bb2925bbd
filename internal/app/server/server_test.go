package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomina/internal/domain/auth"
	"nomina/internal/platform/config"
)

const testSecret = "server-test-secret"

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Config{
		Addr:               ":0",
		Environment:        "test",
		LogLevel:           "error",
		JWTSecret:          testSecret,
		AllowedOrigins:     []string{"http://localhost:3000"},
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 1000,
		ClosureTimeout:     5 * time.Second,
		RollbackAttempts:   2,
		RollbackBackoff:    time.Millisecond,
		CalcWorkers:        2,
		GhostStaleAfter:    time.Hour,
		MetricsEnabled:     true,
	}
	require.NoError(t, cfg.Validate())
	app, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func call(t *testing.T, app *App, role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		tok, err := auth.GenerateToken(testSecret, auth.Claims{UserID: "user-1", OrganizationID: DemoOrganizationID, Role: role}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t)

	rec := call(t, app, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, app, "", http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPIRequiresToken(t *testing.T) {
	app := newTestApp(t)
	rec := call(t, app, "", http.MethodGet, "/api/v1/payroll/periods/missing", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInMemoryRunAgainstDemoWorkforce(t *testing.T) {
	app := newTestApp(t)

	rec := call(t, app, auth.RoleController, http.MethodPost, "/api/v1/payroll/periods",
		map[string]string{"startDate": "2024-08-01", "endDate": "2024-08-31", "type": "monthly"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	rec = call(t, app, auth.RoleController, http.MethodPost, "/api/v1/payroll/periods/"+created.Data.ID+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, app, auth.RoleViewer, http.MethodGet, "/api/v1/payroll/periods/"+created.Data.ID+"/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records.Data, 3)

	rec = call(t, app, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.EqualValues(t, 3, snapshot.Data["requestsTotal"])
}
