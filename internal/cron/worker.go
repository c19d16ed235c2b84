package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bher20/freightrates/internal/metrics"
	"github.com/robfig/cron/v3"
)

// Locker serializes a job across replicas. storage.PostgresPoolStorage
// satisfies it with Postgres advisory locks.
type Locker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error)
}

// Job is one scheduled task. A non-zero LockKey makes the job run on at most
// one replica at a time when the worker has a Locker.
type Job struct {
	Name     string
	Schedule string
	LockKey  int64
	Run      func(ctx context.Context) error
}

// Worker runs jobs on cron schedules.
type Worker struct {
	c      *cron.Cron
	locker Locker
}

// NewWorker returns a Worker. locker may be nil.
func NewWorker(locker Locker) *Worker {
	return &Worker{
		c:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		locker: locker,
	}
}

// Add schedules job. Scheduled runs use ctx.
func (w *Worker) Add(ctx context.Context, job Job) error {
	if _, err := w.c.AddFunc(job.Schedule, func() { _ = w.RunJob(ctx, job) }); err != nil {
		return fmt.Errorf("cron: schedule %s (%q): %w", job.Name, job.Schedule, err)
	}
	slog.Info("cron: job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// RunJob executes job once, taking the advisory lock when configured, and
// records job metrics.
func (w *Worker) RunJob(ctx context.Context, job Job) error {
	started := time.Now()

	var err error
	if w.locker != nil && job.LockKey != 0 {
		var ok bool
		ok, err = w.locker.WithAdvisoryLock(ctx, job.LockKey, job.Run)
		if err == nil && !ok {
			slog.Info("cron: lock held by another worker, skipping run", "job", job.Name)
			return nil
		}
	} else {
		err = job.Run(ctx)
	}

	metrics.UpdateJobMetrics(job.Name, started, err)
	dur := time.Since(started)
	if err != nil {
		slog.Error("cron: job completed with error", "job", job.Name, "duration", dur, "error", err)
	} else {
		slog.Info("cron: job completed", "job", job.Name, "duration", dur)
	}
	return err
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.c.Start()
	slog.Info("cron: worker started", "jobs", len(w.c.Entries()))
	<-ctx.Done()
	<-w.c.Stop().Done()
	slog.Info("cron: worker stopped")
	return ctx.Err()
}
