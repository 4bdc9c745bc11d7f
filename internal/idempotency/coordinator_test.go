package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ddl := `CREATE TABLE idempotency_records (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		account_id TEXT,
		response_body BLOB NOT NULL,
		status_code INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME
	)`
	if err := conn.Exec(ddl).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := conn.Exec(`CREATE UNIQUE INDEX idx_idempotency_keys_key ON idempotency_records (key)`).Error; err != nil {
		t.Fatalf("create index: %v", err)
	}
	return conn
}

func newTestCoordinator(t *testing.T, conn *gorm.DB) Coordinator {
	t.Helper()
	coord, err := NewCoordinator(NewRepository(conn), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return coord
}

func TestLookupUnclaimedKeyReturnsNil(t *testing.T) {
	coord := newTestCoordinator(t, newTestDB(t))

	record, err := coord.Lookup(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %+v", record)
	}
}

func TestClaimThenLookupReplaysResponse(t *testing.T) {
	coord := newTestCoordinator(t, newTestDB(t))
	ctx := context.Background()
	accountID := uuid.New()

	payload := map[string]any{"id": uuid.New().String(), "balance": "1048.00"}
	if err := coord.Claim(ctx, "key-1", &accountID, 201, payload); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	record, err := coord.Lookup(ctx, "key-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if record == nil {
		t.Fatal("expected stored record")
	}
	if record.StatusCode != 201 {
		t.Fatalf("expected status 201, got %d", record.StatusCode)
	}
	if record.ExpiresAt == nil {
		t.Fatal("expected expires_at to be set")
	}

	var decoded map[string]any
	if err := json.Unmarshal(record.ResponseBody, &decoded); err != nil {
		t.Fatalf("unmarshal stored body: %v", err)
	}
	if decoded["balance"] != "1048.00" {
		t.Fatalf("unexpected stored body %v", decoded)
	}
}

func TestClaimDuplicateKeyReturnsConflict(t *testing.T) {
	coord := newTestCoordinator(t, newTestDB(t))
	ctx := context.Background()

	if err := coord.Claim(ctx, "key-1", nil, 201, map[string]string{"v": "first"}); err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	err := coord.Claim(ctx, "key-1", nil, 201, map[string]string{"v": "second"})
	if !errors.Is(err, ErrKeyConflict) {
		t.Fatalf("expected ErrKeyConflict, got %v", err)
	}

	record, err := coord.Lookup(ctx, "key-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !strings.Contains(string(record.ResponseBody), "first") {
		t.Fatalf("expected first writer to win, got %s", record.ResponseBody)
	}
}

func TestSweepExpiredRemovesOnlyExpiredRecords(t *testing.T) {
	conn := newTestDB(t)
	coord := newTestCoordinator(t, conn)
	ctx := context.Background()

	if err := coord.Claim(ctx, "live", nil, 200, map[string]string{}); err != nil {
		t.Fatalf("Claim live: %v", err)
	}
	if err := coord.Claim(ctx, "stale", nil, 200, map[string]string{}); err != nil {
		t.Fatalf("Claim stale: %v", err)
	}

	past := time.Now().UTC().Add(-time.Hour)
	if err := conn.Exec(`UPDATE idempotency_records SET expires_at = ? WHERE key = 'stale'`, past).Error; err != nil {
		t.Fatalf("backdate record: %v", err)
	}

	removed, err := coord.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if record, _ := coord.Lookup(ctx, "live"); record == nil {
		t.Fatal("live record should survive the sweep")
	}
	if record, _ := coord.Lookup(ctx, "stale"); record != nil {
		t.Fatal("stale record should have been removed")
	}
}

func TestNormalizeKeyValidation(t *testing.T) {
	if _, err := NormalizeKey("   "); err == nil {
		t.Fatal("expected error for blank key")
	}
	if _, err := NormalizeKey(strings.Repeat("x", MaxKeyLength+1)); err == nil {
		t.Fatal("expected error for oversized key")
	}
	got, err := NormalizeKey("  abc  ")
	if err != nil {
		t.Fatalf("NormalizeKey: %v", err)
	}
	if got != "abc" {
		t.Fatalf("expected trimmed key, got %q", got)
	}
}
