package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"ranktracker/internal/models"
	"ranktracker/internal/schedule"
)

// RunStatus is the polling payload for dashboards watching a run
type RunStatus struct {
	Status       models.RunStatus  `json:"status"`
	Progress     int               `json:"progress"`
	CurrentStep  string            `json:"current_step,omitempty"`
	IsComplete   bool              `json:"is_complete"`
	IsFailed     bool              `json:"is_failed"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Warnings     map[string]string `json:"warnings,omitempty"`
}

func newRunStatus(run *models.ReportRun) RunStatus {
	return RunStatus{
		Status:       run.Status,
		Progress:     run.Progress,
		CurrentStep:  run.CurrentStep.String,
		IsComplete:   run.Status == models.RunStatusCompleted,
		IsFailed:     run.Status == models.RunStatusFailed,
		ErrorMessage: run.Error.String,
		Warnings:     run.Warnings,
	}
}

// UpsertSchedule is the create/update payload for a report schedule
type UpsertSchedule struct {
	Domain     string           `json:"domain"`
	Frequency  models.Frequency `json:"frequency"`
	DayOfWeek  int              `json:"day_of_week"`
	DayOfMonth int              `json:"day_of_month"`
	TimeOfDay  string           `json:"time_of_day"`
	Keywords   []string         `json:"keywords"`
	IsEnabled  bool             `json:"is_enabled"`
}

func (u *UpsertSchedule) validate() error {
	var errs []error

	u.Domain = strings.TrimSpace(u.Domain)
	if u.Domain == "" {
		errs = append(errs, errors.New("domain is empty"))
	}

	switch u.Frequency {
	case models.FreqWeekly, models.FreqBiweekly:
		if u.DayOfWeek < 0 || u.DayOfWeek > 6 {
			errs = append(errs, errors.New("day_of_week must be between 0 (Sunday) and 6"))
		}
	case models.FreqMonthly:
		if u.DayOfMonth < 1 || u.DayOfMonth > 31 {
			errs = append(errs, errors.New("day_of_month must be between 1 and 31"))
		}
	default:
		errs = append(errs, fmt.Errorf("frequency %q is not one of weekly, biweekly, monthly", u.Frequency))
	}

	u.TimeOfDay = strings.TrimSpace(u.TimeOfDay)
	if u.TimeOfDay == "" {
		u.TimeOfDay = schedule.DefaultTimeOfDay
	} else if _, err := time.Parse("15:04", u.TimeOfDay); err != nil {
		errs = append(errs, fmt.Errorf("time_of_day %q is not a valid HH:MM time", u.TimeOfDay))
	}

	if len(u.Keywords) == 0 {
		errs = append(errs, errors.New("keywords must not be empty"))
	}
	for i, kw := range u.Keywords {
		u.Keywords[i] = strings.TrimSpace(kw)
		if u.Keywords[i] == "" {
			errs = append(errs, fmt.Errorf("keyword %d is empty", i+1))
		}
	}

	return errors.Join(errs...)
}

// toModel builds the schedule record, computing its first execution time from now
func (u *UpsertSchedule) toModel(now time.Time) models.ReportSchedule {
	s := models.ReportSchedule{
		Domain:     u.Domain,
		Frequency:  u.Frequency,
		DayOfWeek:  u.DayOfWeek,
		DayOfMonth: u.DayOfMonth,
		TimeOfDay:  u.TimeOfDay,
		Keywords:   u.Keywords,
		IsEnabled:  u.IsEnabled,
	}
	s.NextRunAt = null.TimeFrom(schedule.NextRunTime(s, now))
	return s
}

// ListSchedule is the read payload, exposing the scheduler-owned fields
type ListSchedule struct {
	ID         int64            `json:"id"`
	Domain     string           `json:"domain"`
	Frequency  models.Frequency `json:"frequency"`
	DayOfWeek  int              `json:"day_of_week"`
	DayOfMonth int              `json:"day_of_month"`
	TimeOfDay  string           `json:"time_of_day"`
	Keywords   []string         `json:"keywords"`
	IsEnabled  bool             `json:"is_enabled"`
	NextRunAt  null.Time        `json:"next_run_at"`
	LastRunAt  null.Time        `json:"last_run_at"`
	LastRunID  null.Int         `json:"last_run_id"`
}

func newListSchedule(s models.ReportSchedule) ListSchedule {
	return ListSchedule{
		ID:         s.ID,
		Domain:     s.Domain,
		Frequency:  s.Frequency,
		DayOfWeek:  s.DayOfWeek,
		DayOfMonth: s.DayOfMonth,
		TimeOfDay:  s.TimeOfDay,
		Keywords:   s.Keywords,
		IsEnabled:  s.IsEnabled,
		NextRunAt:  s.NextRunAt,
		LastRunAt:  s.LastRunAt,
		LastRunID:  s.LastRunID,
	}
}
