package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/ledgerz-backend/pkg/migrate"
)

func TestTransactionsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_transactions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no transactions migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS transactions",
		"FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE",
		"CHECK (amount > 0)",
		"CHECK (fee >= 0)",
		"idx_transactions_account_created",
		"DROP TABLE IF EXISTS transactions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestIdempotencyMigrationHasUniqueKeyIndex(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_idempotency_records.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no idempotency migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS idx_idempotency_keys_key") {
		t.Error("missing unique index on idempotency key")
	}
	if !strings.Contains(content, "expires_at") {
		t.Error("missing expires_at column")
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}
