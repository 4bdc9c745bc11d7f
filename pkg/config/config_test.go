package config

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LEDGERZ_APP_ENV", "dev")
	t.Setenv("LEDGERZ_APP_PORT", "8080")
	t.Setenv("LEDGERZ_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LEDGERZ_JWT_SECRET", "secret")
	t.Setenv("LEDGERZ_JWT_ISSUER", "ledgerz")
}

func TestLoadWithDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEDGERZ_DB_DSN", "postgres://ledger:pw@localhost:5432/ledger?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.DSN != "postgres://ledger:pw@localhost:5432/ledger?sslmode=disable" {
		t.Fatalf("unexpected DSN %q", cfg.DB.DSN)
	}
	if !cfg.App.IsDev() || cfg.App.IsProd() {
		t.Fatal("expected dev environment")
	}
}

func TestLoadAssemblesLegacyDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEDGERZ_DB_HOST", "db.internal")
	t.Setenv("LEDGERZ_DB_USER", "ledger")
	t.Setenv("LEDGERZ_DB_PASSWORD", "pw")
	t.Setenv("LEDGERZ_DB_NAME", "ledgerdb")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.HasPrefix(cfg.DB.DSN, "postgres://ledger:pw@db.internal:5432/ledgerdb") {
		t.Fatalf("unexpected assembled DSN %q", cfg.DB.DSN)
	}
	if !strings.Contains(cfg.DB.DSN, "sslmode=disable") {
		t.Fatalf("expected sslmode in DSN %q", cfg.DB.DSN)
	}
}

func TestLoadFailsWithoutDBSettings(t *testing.T) {
	setRequiredEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DSN and legacy settings are absent")
	}
}

func TestIdempotencyDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEDGERZ_DB_DSN", "postgres://ledger@localhost/ledger")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Idempotency.TTL.Hours() != 168 {
		t.Fatalf("expected 7d TTL default, got %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.SweepInterval.Hours() != 1 {
		t.Fatalf("expected hourly sweep default, got %s", cfg.Idempotency.SweepInterval)
	}
}
