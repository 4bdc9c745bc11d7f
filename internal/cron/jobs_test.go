package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/ledgerz-backend/internal/audit"
	"github.com/angelmondragon/ledgerz-backend/internal/idempotency"
	"github.com/angelmondragon/ledgerz-backend/pkg/db/models"
	"github.com/angelmondragon/ledgerz-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stubCoordinator struct {
	swept    int64
	sweepErr error
	calls    int
}

func (c *stubCoordinator) WithTx(tx *gorm.DB) idempotency.Coordinator { return c }

func (c *stubCoordinator) Lookup(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	return nil, nil
}

func (c *stubCoordinator) Claim(ctx context.Context, key string, accountID *uuid.UUID, statusCode int, response any) error {
	return nil
}

func (c *stubCoordinator) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	c.calls++
	return c.swept, c.sweepErr
}

type stubRetentionRepo struct {
	batches []int64
	err     error
	cutoffs []time.Time
	limits  []int
}

func (r *stubRetentionRepo) WithTx(tx *gorm.DB) audit.Repository { return r }

func (r *stubRetentionRepo) Insert(ctx context.Context, entry *models.AuditLog) error { return nil }

func (r *stubRetentionRepo) ListByEntity(ctx context.Context, entityID uuid.UUID, params pagination.Params) ([]models.AuditLog, int64, error) {
	return nil, 0, nil
}

func (r *stubRetentionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	r.cutoffs = append(r.cutoffs, cutoff)
	r.limits = append(r.limits, limit)
	if r.err != nil {
		return 0, r.err
	}
	if len(r.batches) == 0 {
		return 0, nil
	}
	rows := r.batches[0]
	r.batches = r.batches[1:]
	return rows, nil
}

func TestIdempotencySweepJobRun(t *testing.T) {
	coordinator := &stubCoordinator{swept: 7}
	job, err := NewIdempotencySweepJob(IdempotencySweepParams{
		Logger:      newTestLogger(),
		Coordinator: coordinator,
	})
	if err != nil {
		t.Fatalf("NewIdempotencySweepJob: %v", err)
	}
	if got := job.Name(); got != "idempotency-sweep" {
		t.Fatalf("Name = %q", got)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if coordinator.calls != 1 {
		t.Fatalf("sweep called %d times, want 1", coordinator.calls)
	}
}

func TestIdempotencySweepJobPropagatesError(t *testing.T) {
	coordinator := &stubCoordinator{sweepErr: errors.New("db down")}
	job, err := NewIdempotencySweepJob(IdempotencySweepParams{
		Logger:      newTestLogger(),
		Coordinator: coordinator,
	})
	if err != nil {
		t.Fatalf("NewIdempotencySweepJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to propagate")
	}
}

func TestAuditRetentionJobBatchesUntilDrained(t *testing.T) {
	// Two full batches followed by a short one stops the loop.
	repo := &stubRetentionRepo{batches: []int64{3, 3, 1}}
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	job, err := NewAuditRetentionJob(AuditRetentionParams{
		Logger:    newTestLogger(),
		Repo:      repo,
		Retention: 30 * 24 * time.Hour,
		BatchSize: 3,
		Now:       func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("NewAuditRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(repo.limits); got != 3 {
		t.Fatalf("DeleteOlderThan called %d times, want 3", got)
	}
	wantCutoff := fixed.Add(-30 * 24 * time.Hour)
	for _, cutoff := range repo.cutoffs {
		if !cutoff.Equal(wantCutoff) {
			t.Fatalf("cutoff = %v, want %v", cutoff, wantCutoff)
		}
	}
}

func TestAuditRetentionJobReturnsBatchError(t *testing.T) {
	repo := &stubRetentionRepo{err: errors.New("delete failed")}
	job, err := NewAuditRetentionJob(AuditRetentionParams{
		Logger: newTestLogger(),
		Repo:   repo,
	})
	if err != nil {
		t.Fatalf("NewAuditRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected delete error to propagate")
	}
	if got := len(repo.limits); got != 1 {
		t.Fatalf("DeleteOlderThan called %d times after failure, want 1", got)
	}
}
