package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/config"
)

// Purger deletes reports past their retention period
type Purger interface {
	PurgeExpiredReports(ctx context.Context) (int64, error)
}

// Status describes the retention job
type Status struct {
	Running    bool      `json:"running"`
	Schedule   string    `json:"schedule"`
	NextRun    time.Time `json:"next_run"`
	LastRun    time.Time `json:"last_run"`
	LastPurged int64     `json:"last_purged"`
	LastError  string    `json:"last_error,omitempty"`
}

// Scheduler runs the report retention job on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.RetentionConfig
	purger    Purger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex

	lastRun    time.Time
	lastPurged int64
	lastErr    error
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.RetentionConfig, purger Purger) *Scheduler {
	return &Scheduler{
		config: cfg,
		purger: purger,
	}
}

// Start starts the scheduler. A stopped scheduler can be started again.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	c := cron.New(cron.WithSeconds())
	entryID, err := c.AddFunc(s.config.Schedule, s.purgeReports)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Retention scheduler started with schedule %q", s.config.Schedule)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop any running purge
	s.cancel()

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Retention scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Retention scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// purgeReports is the cron job body
func (s *Scheduler) purgeReports() {
	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping retention run")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (int64, error) {
	s.wg.Add(1)
	defer s.wg.Done()

	logrus.Info("Starting report retention run")
	start := time.Now()

	purged, err := s.purger.PurgeExpiredReports(ctx)

	s.mu.Lock()
	s.lastRun = start
	s.lastPurged = purged
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		logrus.Errorf("Report retention run failed: %v", err)
		return 0, err
	}

	logrus.Infof("Report retention run deleted %d reports in %v", purged, time.Since(start))
	return purged, nil
}

// RunOnce runs the retention job immediately (for manual triggering)
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	logrus.Info("Running report retention once")
	return s.run(ctx)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last run, scheduled or manual
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// Status reports the job state
func (s *Scheduler) Status() Status {
	st := Status{
		Running:  s.IsRunning(),
		Schedule: s.config.Schedule,
		NextRun:  s.GetNextRun(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st.LastRun = s.lastRun
	st.LastPurged = s.lastPurged
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Wait waits for in-flight runs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
