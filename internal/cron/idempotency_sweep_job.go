package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/ledgerz-backend/internal/idempotency"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/angelmondragon/ledgerz-backend/pkg/metrics"
)

const idempotencySweepJobName = "idempotency-sweep"

// IdempotencySweepParams configure the idempotency sweep job.
type IdempotencySweepParams struct {
	Logger      *logger.Logger
	Coordinator idempotency.Coordinator
	Metrics     *metrics.CronJobMetrics
	Now         func() time.Time
}

// IdempotencySweepJob deletes idempotency records past their expiry so the
// arbiter table does not grow without bound. Expired keys become claimable
// again, which is the documented retention trade-off.
type IdempotencySweepJob struct {
	logg        *logger.Logger
	coordinator idempotency.Coordinator
	metrics     *metrics.CronJobMetrics
	now         func() time.Time
}

// NewIdempotencySweepJob builds the sweep job.
func NewIdempotencySweepJob(params IdempotencySweepParams) (*IdempotencySweepJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Coordinator == nil {
		return nil, fmt.Errorf("idempotency coordinator required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &IdempotencySweepJob{
		logg:        params.Logger,
		coordinator: params.Coordinator,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

// Name implements Job.
func (j *IdempotencySweepJob) Name() string {
	return idempotencySweepJobName
}

// Run implements Job.
func (j *IdempotencySweepJob) Run(ctx context.Context) error {
	rows, err := j.coordinator.SweepExpired(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("sweeping expired idempotency records: %w", err)
	}
	if j.metrics != nil {
		j.metrics.AddSwept(idempotencySweepJobName, rows)
	}
	logCtx := j.logg.WithField(ctx, "rows_deleted", rows)
	j.logg.Info(logCtx, "expired idempotency records swept")
	return nil
}
