// Package scheduler provides unified scheduler management using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/meterline/meterline/internal/shared/biztime"
	"github.com/meterline/meterline/internal/shared/logger"
)

// BatchJob defines the interface for a scheduled batch processing job.
// Each Execute call processes a batch and returns the number of items processed.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// SchedulerManager manages all scheduled jobs using gocron v2. A single
// scheduler instance runs the due-billing scan, the past-due reconciliation
// pass, trial activation and the usage rollup.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	// Track whether the scheduler has been started
	started   bool
	startedMu sync.RWMutex
}

// NewSchedulerManager creates a new SchedulerManager instance.
// It initializes gocron with the business timezone for cron expressions.
func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(biztime.Location()),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log,
	}, nil
}

// RegisterBillingJobs registers the due-subscription scan. Every tick bills
// subscriptions whose next billing instant has passed.
func (m *SchedulerManager) RegisterBillingJobs(billDueJob BatchJob, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			m.runBatch(ctx, "due billing scan", billDueJob)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("billing", "due-scan"),
		gocron.WithName("billing-due-scan"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered billing jobs", "interval", interval)
	return nil
}

// RegisterReconciliationJobs registers the past-due reconciliation pass.
// It also runs once at startup so a long outage does not delay recovery by
// another full interval.
func (m *SchedulerManager) RegisterReconciliationJobs(reconcileJob BatchJob, interval time.Duration) error {
	if interval <= 0 {
		interval = 12 * time.Hour
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			m.runBatch(ctx, "past-due reconciliation", reconcileJob)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("billing", "reconciliation"),
		gocron.WithName("billing-reconciliation"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered reconciliation jobs", "interval", interval)
	return nil
}

// RegisterTrialJobs registers trial activation at 01:00 business timezone.
func (m *SchedulerManager) RegisterTrialJobs(activateTrialsJob BatchJob) error {
	_, err := m.scheduler.NewJob(
		gocron.CronJob("0 1 * * *", false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			m.runBatch(ctx, "trial activation", activateTrialsJob)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("billing", "trial-activation"),
		gocron.WithName("billing-trial-activation"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered trial jobs", "schedule", "01:00")
	return nil
}

// RegisterUsageJobs registers the daily usage rollup at 03:00 business
// timezone. The rollup job also trims raw events past retention.
func (m *SchedulerManager) RegisterUsageJobs(rollupJob BatchJob) error {
	_, err := m.scheduler.NewJob(
		gocron.CronJob("0 3 * * *", false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			m.runBatch(ctx, "usage rollup", rollupJob)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("usage", "rollup"),
		gocron.WithName("usage-rollup"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered usage jobs", "schedule", "03:00")
	return nil
}

func (m *SchedulerManager) runBatch(ctx context.Context, name string, job BatchJob) {
	m.logger.Debugw("scheduled batch started", "job", name)

	startTime := biztime.NowUTC()
	count, err := job.Execute(ctx)
	if err != nil {
		m.logger.Errorw("scheduled batch failed",
			"job", name,
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	if count > 0 {
		m.logger.Infow("scheduled batch completed",
			"job", name,
			"count", count,
			"duration", time.Since(startTime),
		)
	} else {
		m.logger.Debugw("scheduled batch completed with nothing to do",
			"job", name,
			"duration", time.Since(startTime),
		)
	}
}

// Start begins executing registered jobs.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}
	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler started")
}

// Stop gracefully shuts the scheduler down, waiting for running jobs.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}
	if err := m.scheduler.Shutdown(); err != nil {
		return err
	}
	m.started = false
	m.logger.Infow("scheduler stopped")
	return nil
}
