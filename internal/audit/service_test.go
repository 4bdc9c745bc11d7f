package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/enums"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/angelmondragon/ledgerz-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

var _ Repository = (*fakeAuditRepo)(nil)

func (f *fakeAuditRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeAuditRepo) Insert(ctx context.Context, entry *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) ListByEntity(ctx context.Context, entityID uuid.UUID, params pagination.Params) ([]models.AuditLog, int64, error) {
	return nil, 0, nil
}

func (f *fakeAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.entries[:0]
	var deleted int64
	for _, entry := range f.entries {
		if entry.CreatedAt.Before(cutoff) && deleted < int64(limit) {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	f.entries = kept
	return deleted, nil
}

func (f *fakeAuditRepo) all() []*models.AuditLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.AuditLog, len(f.entries))
	copy(out, f.entries)
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
}

func (f *fakePublisher) Publish(ctx context.Context, key string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.events = append(f.events, event)
	return nil
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "audit-test", Level: zerolog.ErrorLevel, Output: io.Discard})
}

func TestRecordPersistsEntryAndPublishes(t *testing.T) {
	repo := &fakeAuditRepo{}
	pub := &fakePublisher{}
	svc, err := NewService(repo, pub, config.AuditConfig{QueueSize: 8}, newTestLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	entityID := uuid.New()
	actorID := uuid.New()
	svc.Record(context.Background(), Entry{
		Action:     enums.AuditActionCreateTransaction,
		EntityType: "transaction",
		EntityID:   entityID,
		ActorID:    &actorID,
		Metadata:   map[string]any{"amount": "50.00"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := repo.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(entries))
	}
	row := entries[0]
	if row.Action != enums.AuditActionCreateTransaction {
		t.Fatalf("unexpected action %s", row.Action)
	}
	if row.EntityID != entityID {
		t.Fatalf("unexpected entity id %s", row.EntityID)
	}

	var metadata map[string]any
	if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if metadata["amount"] != "50.00" {
		t.Fatalf("unexpected metadata %v", metadata)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.keys) != 1 || pub.keys[0] != entityID.String() {
		t.Fatalf("expected publish keyed by entity id, got %v", pub.keys)
	}
}

func TestRecordWithoutPublisher(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc, err := NewService(repo, nil, config.AuditConfig{}, newTestLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	svc.Record(context.Background(), Entry{
		Action:     enums.AuditActionDeleteTransaction,
		EntityType: "transaction",
		EntityID:   uuid.New(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(repo.all()) != 1 {
		t.Fatal("expected entry to persist without a publisher")
	}
}
