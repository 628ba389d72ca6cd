// Package scheduler keeps the derived view current: it performs the initial
// load, refreshes periodically so writes made by other processes sharing the
// database are picked up, and warns when the data goes stale.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giygas/cleaning-validation-api/data"
	"github.com/giygas/cleaning-validation-api/interfaces"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// staleAfter is how many missed intervals make the data stale.
const staleAfter = 3

// Scheduler runs refreshes and staleness checks on a gocron scheduler.
type Scheduler struct {
	dataStore  interfaces.DataStore
	refresher  interfaces.Refresher
	interval   time.Duration
	timeout    time.Duration
	scheduler  *gocron.Scheduler
	refreshJob *gocron.Job
}

// NewScheduler creates a scheduler that refreshes every interval.
func NewScheduler(dataStore interfaces.DataStore, refresher interfaces.Refresher, interval time.Duration) *Scheduler {
	return &Scheduler{
		dataStore: dataStore,
		refresher: refresher,
		interval:  interval,
		timeout:   time.Minute,
		scheduler: gocron.NewScheduler(time.Local),
	}
}

// Start performs the initial load and schedules the recurring jobs.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.refresher.Refresh(ctx); err != nil {
		logging.Error("Failed to perform initial data load", "error", err)
		return fmt.Errorf("initial data load failed: %w", err)
	}

	job, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(s.refresh)
	if err != nil {
		logging.Error("Failed to schedule refreshes", "error", err)
		return fmt.Errorf("failed to schedule refreshes: %w", err)
	}
	s.refreshJob = job

	if _, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() { s.checkStaleness() }); err != nil {
		return fmt.Errorf("failed to schedule staleness monitoring: %w", err)
	}

	s.scheduler.StartAsync()
	logging.Info("Scheduler started", "interval", s.interval.String(), "next_run", s.NextRun().Format(time.RFC3339))

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// NextRun returns when the next periodic refresh fires, or the zero time
// before Start.
func (s *Scheduler) NextRun() time.Time {
	if s.refreshJob == nil {
		return time.Time{}
	}
	return s.refreshJob.NextRun()
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.refresher.TryRefresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, data.ErrUpdateInProgress):
		logging.Debug("Refresh already in progress, skipping scheduled run")
	default:
		logging.Error("Scheduled refresh failed", "error", err)
	}
}

// checkStaleness warns when no refresh has succeeded for several intervals.
func (s *Scheduler) checkStaleness() bool {
	lastUpdate := s.dataStore.GetLastUpdated()
	age := time.Since(lastUpdate)
	if lastUpdate.IsZero() || age > staleAfter*s.interval {
		logging.Warn("Data has not been refreshed recently",
			"last_updated", lastUpdate.Format(time.RFC3339),
			"age", age.Round(time.Second).String(),
		)
		return true
	}
	return false
}
