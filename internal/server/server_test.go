package server_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/sandboxd/internal/auth"
	"github.com/sakif/sandboxd/internal/executor"
	"github.com/sakif/sandboxd/internal/executor/supervisor"
	"github.com/sakif/sandboxd/internal/server"
)

type stubSandbox struct{}

func (s *stubSandbox) Execute(_ context.Context, _ executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	return &executor.ExecutionResult{Stdout: "stubbed", ExecutionCount: 1}, nil
}

func (s *stubSandbox) Stats() supervisor.PoolStats {
	return supervisor.PoolStats{Size: 1}
}

func newTestServer(t *testing.T, jwtSecret string) *server.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	srv, err := server.New(server.Config{
		Port:      0,
		DBPath:    ":memory:",
		JWTSecret: jwtSecret,
	}, logger, &stubSandbox{})
	require.NoError(t, err)
	return srv
}

func TestRoutes_Open(t *testing.T) {
	srv := newTestServer(t, "")

	t.Run("healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("execute without auth", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/execute",
			bytes.NewBufferString(`{"code":"x = 1"}`))
		srv.Router().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "stubbed")
	})

	t.Run("stats", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("executions list", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/executions", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestRoutes_AuthEnabled(t *testing.T) {
	const secret = "test-secret-at-least-16-chars!!"
	srv := newTestServer(t, secret)

	tokens, err := auth.NewTokenService(secret)
	require.NoError(t, err)
	token, err := tokens.Generate("tool-layer", time.Hour)
	require.NoError(t, err)

	t.Run("healthz stays public", func(t *testing.T) {
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("api rejects missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/execute",
			bytes.NewBufferString(`{"code":"x = 1"}`))
		srv.Router().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("api accepts bearer token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/execute",
			bytes.NewBufferString(`{"code":"x = 1"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		srv.Router().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestServer_RejectsShortJWTSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	_, err := server.New(server.Config{
		DBPath:    ":memory:",
		JWTSecret: "short",
	}, logger, &stubSandbox{})
	assert.Error(t, err)
}
