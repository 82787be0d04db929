package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"pwsrelay/internal/metrics"
)

// Pruner deletes observations older than a cutoff.
type Pruner interface {
	DeleteObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler periodically prunes observations past the retention window.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pruner    Pruner
	metrics   *metrics.Collector
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

func New(pruner Pruner, retention, interval time.Duration, m *metrics.Collector, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		pruner:    pruner,
		metrics:   m,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Start schedules the retention job, running it once immediately, and
// starts the underlying scheduler. A non-positive retention disables pruning.
func (s *Scheduler) Start() error {
	if s.retention <= 0 {
		s.logger.Info("scheduler: retention disabled; nothing to schedule")
		return nil
	}
	interval := s.interval
	if interval <= 0 {
		interval = time.Hour
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("scheduler: retention job failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule retention job: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "retention", s.retention.String(), "interval", interval.String())
	return nil
}

// RunOnce deletes everything older than the retention window.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	n, err := s.pruner.DeleteObservationsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete observations before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if s.metrics != nil {
		s.metrics.RecordRetention(n)
	}
	s.logger.Info("scheduler: retention job completed", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
