package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/angelmondragon/ledgerz-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service drives the registered jobs on a fixed cadence, one worker at a
// time via the distributed lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes one cycle immediately, then one per interval until the
// context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "cron cycle failed", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "cron cycle failed", err)
			}
		}
	}
}

// runCycle runs every registered job once. A failing job is logged and
// counted but never blocks the jobs after it.
func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	s.logg.Info(ctx, "cron cycle starting")
	for _, job := range s.registry.Jobs() {
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "cron cycle complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	s.logg.Info(jobCtx, "job start")

	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)

	if s.metrics != nil {
		s.metrics.ObserveDuration(name, duration)
	}
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		if s.metrics != nil {
			s.metrics.IncFailure(name)
		}
		return
	}
	s.logg.Info(jobCtx, "job completed")
	if s.metrics != nil {
		s.metrics.IncSuccess(name)
	}
}
