package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CATALOG_TTL_SECONDS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Port)
	}
	if cfg.CatalogTTLSeconds != 30 {
		t.Fatalf("catalog ttl = %d, want 30", cfg.CatalogTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d, want 480", cfg.AccessTokenTTLMinutes)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address = %q, want :8080", cfg.Address())
	}
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("CATALOG_TTL_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.CatalogTTLSeconds != 30 {
		t.Fatalf("catalog ttl = %d, want fallback 30", cfg.CatalogTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d, want fallback 480", cfg.AccessTokenTTLMinutes)
	}
}
