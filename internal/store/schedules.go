package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ranktracker/internal/models"
)

// DueSchedules returns enabled schedules whose next_run_at has come due
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]models.ReportSchedule, error) {
	var schedules []models.ReportSchedule
	query := `
SELECT *
FROM report.schedule
WHERE is_enabled
  AND next_run_at IS NOT NULL
  AND next_run_at <= $1
ORDER BY next_run_at, id
`

	if err := s.db.SelectContext(ctx, &schedules, query, now); err != nil {
		return nil, err
	}
	return schedules, nil
}

// MarkTriggered records the run that was just created for the schedule and stores the
// next execution time
func (s *Store) MarkTriggered(ctx context.Context, scheduleID, runID int64, lastRunAt, nextRunAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE report.schedule
SET last_run_at = $2,
	last_run_id = $3,
	next_run_at = $4,
	updated_at = NOW()
WHERE id = $1
`, scheduleID, lastRunAt, runID, nextRunAt)

	return err
}

// CreateSchedule inserts a schedule and fills in the generated id and timestamps
func (s *Store) CreateSchedule(ctx context.Context, schedule *models.ReportSchedule) error {
	query := `
INSERT INTO report.schedule
	(domain, frequency, day_of_week, day_of_month, time_of_day, keywords, is_enabled, next_run_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, updated_at
`

	return s.db.QueryRowContext(ctx, query,
		schedule.Domain,
		schedule.Frequency,
		schedule.DayOfWeek,
		schedule.DayOfMonth,
		schedule.TimeOfDay,
		schedule.Keywords,
		schedule.IsEnabled,
		schedule.NextRunAt,
	).Scan(&schedule.ID, &schedule.CreatedAt, &schedule.UpdatedAt)
}

// UpdateSchedule rewrites the mutable fields of a schedule
func (s *Store) UpdateSchedule(ctx context.Context, schedule *models.ReportSchedule) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE report.schedule
SET frequency = $2,
	day_of_week = $3,
	day_of_month = $4,
	time_of_day = $5,
	keywords = $6,
	is_enabled = $7,
	next_run_at = $8,
	updated_at = NOW()
WHERE id = $1
`,
		schedule.ID,
		schedule.Frequency,
		schedule.DayOfWeek,
		schedule.DayOfMonth,
		schedule.TimeOfDay,
		schedule.Keywords,
		schedule.IsEnabled,
		schedule.NextRunAt,
	)
	if err != nil {
		return err
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM report.schedule WHERE id = $1`, scheduleID)
	if err != nil {
		return err
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSchedule fetches a single schedule by id
func (s *Store) GetSchedule(ctx context.Context, scheduleID int64) (*models.ReportSchedule, error) {
	var schedule models.ReportSchedule
	err := s.db.GetContext(ctx, &schedule, `SELECT * FROM report.schedule WHERE id = $1`, scheduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// ListSchedules fetches all schedules
func (s *Store) ListSchedules(ctx context.Context) ([]models.ReportSchedule, error) {
	var schedules []models.ReportSchedule
	if err := s.db.SelectContext(ctx, &schedules, `SELECT * FROM report.schedule ORDER BY id`); err != nil {
		return nil, err
	}
	return schedules, nil
}
