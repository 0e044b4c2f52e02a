package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/guregu/null/v6"
)

// This file contains all the models under the `report` schema

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal returns true if the status has no outgoing transitions
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// WarningMap maps a pipeline step name to the error summary recorded for it.
// Stored as JSONB in the `warnings` column.
type WarningMap map[string]string

func (m WarningMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *WarningMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("warnings column is not a JSON blob")
	}
}

// ReportRun is a model representing the `report.run` table. One row is one execution
// of the collection pipeline for a domain. Retried attempts reuse the same row.
type ReportRun struct {
	ID            int64       `db:"id"`
	Domain        string      `db:"domain"`
	Status        RunStatus   `db:"status"`
	Progress      int         `db:"progress"` // 0 - 100
	CurrentStep   null.String `db:"current_step"`
	Warnings      WarningMap  `db:"warnings"`
	Error         null.String `db:"error"`
	Attempts      int         `db:"attempts"`
	WorkerID      null.String `db:"worker_id"`
	CreatedAt     time.Time   `db:"created_at"`
	StartedAt     null.Time   `db:"started_at"`
	CompletedAt   null.Time   `db:"completed_at"`
	LastHeartbeat null.Time   `db:"last_heartbeat"`
}

type Frequency string

const (
	FreqWeekly   Frequency = "weekly"
	FreqBiweekly Frequency = "biweekly"
	FreqMonthly  Frequency = "monthly"
)

// KeywordList is the set of keywords tracked for a domain. Stored as JSONB.
type KeywordList []string

func (l KeywordList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *KeywordList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("keywords column is not a JSON blob")
	}
}

// ReportSchedule is a model representing the `report.schedule` table. A domain has at
// most one schedule; the scheduler recomputes NextRunAt after every triggered run.
type ReportSchedule struct {
	ID         int64       `db:"id"`
	Domain     string      `db:"domain"`
	Frequency  Frequency   `db:"frequency"`
	DayOfWeek  int         `db:"day_of_week"`  // 0 (Sunday) - 6, weekly and biweekly only
	DayOfMonth int         `db:"day_of_month"` // 1 - 31, monthly only
	TimeOfDay  string      `db:"time_of_day"`  // "HH:MM", UTC
	Keywords   KeywordList `db:"keywords"`
	IsEnabled  bool        `db:"is_enabled"`
	NextRunAt  null.Time   `db:"next_run_at"`
	LastRunAt  null.Time   `db:"last_run_at"`
	LastRunID  null.Int    `db:"last_run_id"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

// PositionMap maps a keyword to its rank position. A null position means the keyword
// did not rank (or the provider returned no data for it). Stored as JSONB.
type PositionMap map[string]null.Int

func (m PositionMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *PositionMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("positions column is not a JSON blob")
	}
}

// ReportSnapshot is a model representing the `report.snapshot` table: the per-keyword
// positions of one completed run, kept for historical comparison.
type ReportSnapshot struct {
	RunID     int64       `db:"run_id"`
	Domain    string      `db:"domain"`
	CreatedAt time.Time   `db:"created_at"`
	Positions PositionMap `db:"positions"`
}
