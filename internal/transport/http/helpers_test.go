package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/directchat/internal/auth"
	"github.com/vovakirdan/directchat/internal/backend/local"
	"github.com/vovakirdan/directchat/internal/config"
	"github.com/vovakirdan/directchat/internal/handle"
	"github.com/vovakirdan/directchat/internal/store"
	"github.com/vovakirdan/directchat/internal/store/sqlite"
)

var testHandles = handle.NewMapper("example.org")

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	return auth.NewService(st, testHandles, jwtConfig)
}

type testServer struct {
	router *gin.Engine
	auth   *auth.Service
}

// newTestServer wires the local backend behind the router.
func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st, "test-secret")

	disabledLogger := zerolog.Nop()
	backend := local.NewBackend(st, &disabledLogger)

	cfg := config.Default()
	cfg.Realm = "example.org"
	cfg.SettleDelay = 250 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	router := NewRouter(local.NewAuthenticator(authService, backend), authService, testHandles, &cfg, &disabledLogger)
	return &testServer{router: router, auth: authService}
}

func (s *testServer) register(t *testing.T, username, displayName string) string {
	t.Helper()

	token, err := s.auth.Register(context.Background(), username, "password123", displayName)
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", resp.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()

	if resp.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
}
