package schedule

import (
	"context"
	"time"

	"github.com/guregu/null/v6"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"ranktracker/internal/models"
	"ranktracker/internal/queue"
)

// Store is the persistence surface the scheduler needs. The scheduler is the only
// writer to next_run_at / last_run_at / last_run_id.
type Store interface {
	// DueSchedules returns enabled schedules whose next_run_at is at or before now
	DueSchedules(ctx context.Context, now time.Time) ([]models.ReportSchedule, error)
	// CreateRun inserts a pending run record and returns its id
	CreateRun(ctx context.Context, domain string) (int64, error)
	// MarkTriggered records the run against the schedule and stores the next run time
	MarkTriggered(ctx context.Context, scheduleID, runID int64, lastRunAt, nextRunAt time.Time) error
}

// Scheduler scans for due schedules on a recurring tick, creates run records and
// publishes run requests for workers to pick up
type Scheduler struct {
	store       Store
	queue       queue.Client
	cron        *cron.Cron
	tickCron    string
	maxAttempts int
	clock       func() time.Time

	isRunning  bool // checks if start has been called
	context    context.Context
	cancelFunc context.CancelFunc
}

// New creates a new scheduler service. tickCron is the cron expression for the
// trigger tick (hourly by default) and maxAttempts is carried into each run request
// as the pipeline's retry bound.
func New(store Store, queue queue.Client, tickCron string, maxAttempts int) *Scheduler {
	return &Scheduler{
		store:       store,
		queue:       queue,
		cron:        cron.New(cron.WithLocation(time.UTC)),
		tickCron:    tickCron,
		maxAttempts: maxAttempts,
		clock:       time.Now,
		isRunning:   false,
	}
}

// SetClock overrides the scheduler's time source. Only used by tests
func (s *Scheduler) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Start begins the scheduler service
func (s *Scheduler) Start(ctx context.Context) error {
	if s.isRunning {
		return nil
	}

	s.isRunning = true
	s.context, s.cancelFunc = context.WithCancel(ctx)

	_, err := s.cron.AddFunc(s.tickCron, func() {
		if s.context.Err() != nil {
			return // Context cancelled
		}
		s.Tick(s.context)
	})
	if err != nil {
		return err
	}

	// Run one tick immediately so a restart does not wait out the first interval
	s.Tick(s.context)
	s.cron.Start()

	return nil
}

// Stop stops the scheduler service
func (s *Scheduler) Stop() {
	if !s.isRunning {
		return
	}

	s.cancelFunc()
	s.cron.Stop()
	s.isRunning = false
}

// Tick runs one scheduling pass: every enabled schedule that has come due gets a new
// pending run, a message on the queue, and a fresh next_run_at
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock().UTC()

	schedules, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch due schedules")
		return
	}

	for _, sched := range schedules {
		if err := s.trigger(ctx, sched, now); err != nil {
			log.Error().
				Err(err).
				Int64("schedule_id", sched.ID).
				Str("domain", sched.Domain).
				Msg("Failed to trigger scheduled run")
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, sched models.ReportSchedule, now time.Time) error {
	runID, err := s.store.CreateRun(ctx, sched.Domain)
	if err != nil {
		return err
	}

	message := queue.RunRequest{
		RunID:       runID,
		Domain:      sched.Domain,
		Keywords:    sched.Keywords,
		MaxAttempts: s.maxAttempts,
		ScheduledAt: now,
	}
	if err := s.queue.PublishRunRequest(ctx, message); err != nil {
		return err
	}

	// The run just triggered becomes the last run for the next-time calculation;
	// biweekly spacing depends on it
	sched.LastRunAt = null.TimeFrom(now)
	next := NextRunTime(sched, now)

	if err := s.store.MarkTriggered(ctx, sched.ID, runID, now, next); err != nil {
		return err
	}

	log.Info().
		Int64("schedule_id", sched.ID).
		Int64("run_id", runID).
		Str("domain", sched.Domain).
		Time("next_run_at", next).
		Msg("Report run scheduled")

	return nil
}
