package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/service"
)

// Refresher is the price maintenance the scheduler drives
type Refresher interface {
	RefreshAll(ctx context.Context) ([]*service.RefreshResult, int, error)
	Prune(ctx context.Context, retentionDays int) (int64, error)
}

// Scheduler runs the daily price refresh
type Scheduler struct {
	cron          *gocron.Scheduler
	refresher     Refresher
	refreshAt     string
	retentionDays int
	timeout       time.Duration
	logger        *logrus.Logger
}

// New creates a scheduler that refreshes every active stock daily at refreshAt
// (HH:MM, UTC) and then prunes bars older than retentionDays
func New(refresher Refresher, refreshAt string, retentionDays int, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:          gocron.NewScheduler(time.UTC),
		refresher:     refresher,
		refreshAt:     refreshAt,
		retentionDays: retentionDays,
		timeout:       2 * time.Hour,
		logger:        logger,
	}
}

// Start registers the daily job and starts the scheduler in the background
func (s *Scheduler) Start() error {
	job, err := s.cron.Every(1).Day().At(s.refreshAt).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			s.logger.WithError(err).Error("Scheduled price refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule price refresh at %s: %w", s.refreshAt, err)
	}

	s.cron.StartAsync()
	s.logger.WithField("next_run", job.NextRun().Format(time.RFC3339)).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("Scheduler stopped")
}

// NextRun reports when the refresh job runs next, zero before Start
func (s *Scheduler) NextRun() time.Time {
	jobs := s.cron.Jobs()
	if len(jobs) == 0 {
		return time.Time{}
	}
	return jobs[0].NextRun()
}

// RunOnce refreshes every active stock, then prunes old bars
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	results, failures, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh prices: %w", err)
	}

	fetched := 0
	for _, r := range results {
		fetched += r.Fetched
	}

	pruned, err := s.refresher.Prune(ctx, s.retentionDays)
	if err != nil {
		return fmt.Errorf("failed to prune prices: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"refreshed": len(results),
		"failures":  failures,
		"fetched":   fetched,
		"pruned":    pruned,
		"duration":  time.Since(start).String(),
	}).Info("Price refresh run finished")
	return nil
}
