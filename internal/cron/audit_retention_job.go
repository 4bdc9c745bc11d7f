package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/ledgerz-backend/internal/audit"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/angelmondragon/ledgerz-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const (
	auditRetentionJobName = "audit-retention"

	defaultAuditRetention   = 90 * 24 * time.Hour
	defaultRetentionBatch   = 500
	defaultRetentionBatches = 20
)

// AuditRetentionParams configure the audit retention job.
type AuditRetentionParams struct {
	Logger    *logger.Logger
	Repo      audit.Repository
	Metrics   *metrics.CronJobMetrics
	Retention time.Duration
	BatchSize int
	Now       func() time.Time
}

// AuditRetentionJob prunes audit log rows older than the retention window.
// Deletion happens in bounded batches so a large backlog cannot hold a
// long-running delete over the table.
type AuditRetentionJob struct {
	logg      *logger.Logger
	repo      audit.Repository
	metrics   *metrics.CronJobMetrics
	retention time.Duration
	batchSize int
	now       func() time.Time
}

// NewAuditRetentionJob builds the retention job.
func NewAuditRetentionJob(params AuditRetentionParams) (*AuditRetentionJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultAuditRetention
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRetentionBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &AuditRetentionJob{
		logg:      params.Logger,
		repo:      params.Repo,
		metrics:   params.Metrics,
		retention: retention,
		batchSize: batchSize,
		now:       now,
	}, nil
}

// Name implements Job.
func (j *AuditRetentionJob) Name() string {
	return auditRetentionJobName
}

// Run implements Job.
func (j *AuditRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var errs []error
	var total int64
	for batch := 0; batch < defaultRetentionBatches; batch++ {
		rows, err := j.repo.DeleteOlderThan(ctx, cutoff, j.batchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("batch %d: %w", batch, err))
			break
		}
		total += rows
		if rows < int64(j.batchSize) {
			break
		}
	}
	if j.metrics != nil {
		j.metrics.AddSwept(auditRetentionJobName, total)
	}

	logCtx := j.logg.WithField(ctx, "rows_deleted", total)
	logCtx = j.logg.WithField(logCtx, "cutoff", cutoff.Format(time.RFC3339))
	j.logg.Info(logCtx, "audit retention pass complete")
	return multierr.Combine(errs...)
}
