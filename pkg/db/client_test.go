package db

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLiteClient(t *testing.T) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.Exec(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`).Error; err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		conn.Exec(`DROP TABLE IF EXISTS kv`)
	})
	client, err := NewWithConn(conn)
	if err != nil {
		t.Fatalf("NewWithConn: %v", err)
	}
	return client
}

func TestWithTxCommits(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Exec(`INSERT INTO kv (k, v) VALUES ('a', '1')`).Error
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	var count int64
	if err := client.Raw(ctx, `SELECT COUNT(*) FROM kv`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO kv (k, v) VALUES ('b', '2')`).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int64
	if err := client.Raw(ctx, `SELECT COUNT(*) FROM kv`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, got %d rows", count)
	}
}

func TestNewWithConnRequiresConnection(t *testing.T) {
	if _, err := NewWithConn(nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil", nil, "", false},
		{"postgres", errors.New(`duplicate key value violates unique constraint "idx_idempotency_keys_key"`), "", true},
		{"postgres named", errors.New(`duplicate key value violates unique constraint "idx_idempotency_keys_key"`), "idx_idempotency_keys_key", true},
		{"sqlite", errors.New("UNIQUE constraint failed: idempotency_records.key"), "", true},
		{"gorm", gorm.ErrDuplicatedKey, "", true},
		{"other", errors.New("connection refused"), "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
