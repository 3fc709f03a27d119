package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("PORT", "5000")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_SECRET_FILE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_URL_FILE", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("GOOGLE_CLIENT_SECRET_FILE", "")
	t.Setenv("GOOGLE_REDIRECT_URL", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("FRONTEND_URL", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Environment != "development" {
		t.Fatalf("expected development environment, got %q", cfg.Environment)
	}
	if cfg.HTTPPort != 5000 || cfg.HTTPAddress() != ":5000" {
		t.Fatalf("expected port 5000, got %d", cfg.HTTPPort)
	}
	if !cfg.UseInMemoryStore() {
		t.Fatal("expected the in-memory store by default")
	}
	if cfg.GoogleOAuthEnabled() {
		t.Fatal("expected OAuth disabled without Google credentials")
	}
	if len(cfg.AllowedOrigins) == 0 {
		t.Fatal("expected default allowed origins")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when JWT_SECRET is missing")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when postgres is selected without DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for a non-numeric port")
	}
}

func TestLoadReadsSecretFromFile(t *testing.T) {
	setBaseEnv(t)

	path := filepath.Join(t.TempDir(), "jwt_secret")
	if err := os.WriteFile(path, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.JWTSecret != "file-secret" {
		t.Fatalf("expected trimmed secret from file, got %q", cfg.JWTSecret)
	}
}

func TestLoadParsesAllowedOrigins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://kerbside.app, https://staging.kerbside.app ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	want := []string{"https://kerbside.app", "https://staging.kerbside.app"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("expected %d origins, got %v", len(want), cfg.AllowedOrigins)
	}
	for i, origin := range want {
		if cfg.AllowedOrigins[i] != origin {
			t.Fatalf("expected origin %q at %d, got %q", origin, i, cfg.AllowedOrigins[i])
		}
	}
}

func TestGoogleOAuthEnabledRequiresAllCredentials(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.GoogleOAuthEnabled() {
		t.Fatal("expected OAuth disabled without a redirect URL")
	}

	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost:5000/api/auth/google/callback")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.GoogleOAuthEnabled() {
		t.Fatal("expected OAuth enabled with full Google credentials")
	}
}
