package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/rs/zerolog"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "cron-test",
		Level:       zerolog.ErrorLevel,
		Output:      io.Discard,
	})
}

type stubLock struct {
	acquired   bool
	acquireErr error
	releases   int
}

func (l *stubLock) Acquire(ctx context.Context) (bool, error) {
	return l.acquired, l.acquireErr
}

func (l *stubLock) Release(ctx context.Context) error {
	l.releases++
	return nil
}

type stubJob struct {
	name string
	runs int
	err  error
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func TestRunCycleExecutesAllJobs(t *testing.T) {
	first := &stubJob{name: "first"}
	second := &stubJob{name: "second", err: errors.New("boom")}
	third := &stubJob{name: "third"}
	lock := &stubLock{acquired: true}

	svc, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: NewRegistry(first, second, third),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	// A failing job must not stop the jobs behind it.
	for _, job := range []*stubJob{first, second, third} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times, want 1", job.name, job.runs)
		}
	}
	if lock.releases != 1 {
		t.Fatalf("lock released %d times, want 1", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &stubJob{name: "only"}
	lock := &stubLock{acquired: false}

	svc, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran %d times while lock was held elsewhere", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("lock released %d times without being acquired", lock.releases)
	}
}

func TestRunCycleSurfacesAcquireError(t *testing.T) {
	lock := &stubLock{acquireErr: errors.New("redis down")}

	svc, err := NewService(ServiceParams{
		Logger: newTestLogger(),
		Lock:   lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.runCycle(context.Background()); err == nil {
		t.Fatal("expected error when lock acquisition fails")
	}
}

func TestNewServiceValidatesDeps(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &stubLock{}}); err == nil {
		t.Fatal("expected error without logger")
	}
	if _, err := NewService(ServiceParams{Logger: newTestLogger()}); err == nil {
		t.Fatal("expected error without lock")
	}
}

func TestRegistrySkipsNilAndDuplicateJobs(t *testing.T) {
	registry := NewRegistry(nil, &stubJob{name: "real"})
	registry.Register(nil)
	registry.Register(&stubJob{name: "real"})
	registry.Register(&stubJob{name: "other"})
	if got := len(registry.Jobs()); got != 2 {
		t.Fatalf("registry holds %d jobs, want 2", got)
	}
}
