package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kerbside/internal/config"
	"kerbside/internal/identity"
)

func newTestRouter(t *testing.T) (http.Handler, *identity.Service) {
	t.Helper()

	repo := identity.NewInMemoryRepository()
	issuer := identity.NewTokenIssuer("test-secret", 15*time.Minute)
	service := identity.NewService(repo, issuer, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Config{
		Environment:    "development",
		AllowedOrigins: []string{"*"},
		FrontendURL:    "http://localhost:3000",
	}
	return NewRouter(cfg, service, nil, logger), service
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func registerTestUser(t *testing.T, router http.Handler) {
	t.Helper()

	rec := postJSON(t, router, "/api/v1/auth/register", map[string]string{
		"name":     "Pat",
		"email":    "pat@example.com",
		"password": "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckEmailEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	registerTestUser(t, router)

	rec := postJSON(t, router, "/api/v1/auth/check-email", map[string]string{"email": "pat@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["exists"] != true || body["provider"] != identity.ProviderPassword {
		t.Fatalf("expected password-bound account, got %v", body)
	}

	rec = postJSON(t, router, "/api/v1/auth/check-email", map[string]string{"email": "nobody@example.com"})
	body = decodeBody(t, rec)
	if body["exists"] != false {
		t.Fatalf("expected unregistered email, got %v", body)
	}
	if _, ok := body["provider"]; ok {
		t.Fatalf("provider must be omitted for unregistered emails, got %v", body)
	}
}

func TestRegisterEndpointValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/auth/register", map[string]string{
		"name":     "",
		"email":    "not-an-email",
		"password": "short",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	fields, ok := body["fields"].(map[string]any)
	if !ok {
		t.Fatalf("expected field errors, got %v", body)
	}
	for _, key := range []string{"email", "password", "name"} {
		if fields[key] == nil {
			t.Fatalf("expected a message for %q, got %v", key, fields)
		}
	}
}

func TestRegisterEndpointDuplicate(t *testing.T) {
	router, _ := newTestRouter(t)
	registerTestUser(t, router)

	rec := postJSON(t, router, "/api/v1/auth/register", map[string]string{
		"name":     "Other",
		"email":    "pat@example.com",
		"password": "password456",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRegisterEndpointDoesNotIssueTokens(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/auth/register", map[string]string{
		"name":     "Pat",
		"email":    "pat@example.com",
		"password": "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["user"] == nil {
		t.Fatalf("expected user in response, got %v", body)
	}
	if _, ok := body["tokens"]; ok {
		t.Fatalf("register must not return tokens, got %v", body)
	}
}

func TestLoginEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	registerTestUser(t, router)

	rec := postJSON(t, router, "/api/v1/auth/login", map[string]string{
		"email":    "pat@example.com",
		"password": "password123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	tokens, ok := body["tokens"].(map[string]any)
	if !ok || tokens["access_token"] == "" || tokens["refresh_token"] == "" {
		t.Fatalf("expected a token pair, got %v", body)
	}

	rec = postJSON(t, router, "/api/v1/auth/login", map[string]string{
		"email":    "pat@example.com",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestOAuthEndpointConflict(t *testing.T) {
	router, _ := newTestRouter(t)
	registerTestUser(t, router)

	rec := postJSON(t, router, "/api/v1/auth/oauth", map[string]string{
		"provider": "google",
		"email":    "pat@example.com",
		"name":     "Pat G",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["provider"] != identity.ProviderPassword {
		t.Fatalf("expected conflicting provider %q, got %v", identity.ProviderPassword, body)
	}
}

func TestOAuthEndpointCreates(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := postJSON(t, router, "/api/v1/auth/oauth", map[string]string{
		"provider": "google",
		"email":    "g@example.com",
		"name":     "G User",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["user"] == nil || body["tokens"] == nil {
		t.Fatalf("expected user and tokens, got %v", body)
	}

	rec = postJSON(t, router, "/api/v1/auth/oauth", map[string]string{"provider": "", "email": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing claims, got %d", rec.Code)
	}
}

func TestRefreshEndpointRotation(t *testing.T) {
	router, service := newTestRouter(t)
	registerTestUser(t, router)

	_, pair, err := service.Login(context.Background(), "pat@example.com", "password123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	rec := postJSON(t, router, "/api/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["refresh_token"] == pair.RefreshToken || body["refresh_token"] == "" {
		t.Fatalf("expected a rotated refresh token, got %v", body)
	}

	// The consumed token is single-use.
	rec = postJSON(t, router, "/api/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for reused token, got %d", rec.Code)
	}
}

func TestLogoutEndpointRevokes(t *testing.T) {
	router, service := newTestRouter(t)
	registerTestUser(t, router)

	_, pair, err := service.Login(context.Background(), "pat@example.com", "password123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	rec := postJSON(t, router, "/api/v1/auth/logout", map[string]string{"refresh_token": pair.RefreshToken})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = postJSON(t, router, "/api/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked token, got %d", rec.Code)
	}
}

func TestMeEndpointRequiresBearer(t *testing.T) {
	router, service := newTestRouter(t)
	registerTestUser(t, router)

	_, pair, err := service.Login(context.Background(), "pat@example.com", "password123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", pair.AccessToken))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	user, ok := body["user"].(map[string]any)
	if !ok || user["email"] != "pat@example.com" {
		t.Fatalf("expected the authenticated user, got %v", body)
	}

	for _, header := range []string{"", "Bearer not-a-token", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("header %q: expected a WWW-Authenticate challenge", header)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body)
	}
}
