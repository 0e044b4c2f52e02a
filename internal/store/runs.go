package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"ranktracker/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// CreateRun inserts a pending run record for the domain and returns its id
func (s *Store) CreateRun(ctx context.Context, domain string) (int64, error) {
	query := `
		INSERT INTO report.run (domain, status)
		VALUES ($1, $2)
		RETURNING id
	`

	var runID int64
	if err := s.db.QueryRowContext(ctx, query, domain, models.RunStatusPending).Scan(&runID); err != nil {
		return 0, err
	}
	return runID, nil
}

// GetRun fetches a single run by id
func (s *Store) GetRun(ctx context.Context, runID int64) (*models.ReportRun, error) {
	var run models.ReportRun
	err := s.db.GetContext(ctx, &run, `SELECT * FROM report.run WHERE id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &run, nil
}

// MarkRunning transitions a pending run to running. Re-delivered requests for a run
// already past pending leave the row untouched.
func (s *Store) MarkRunning(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE report.run
SET status = $2,
	started_at = NOW(),
	attempts = 1
WHERE id = $1
  AND status = $3
`, runID, models.RunStatusRunning, models.RunStatusPending)

	return err
}

// AssignWorker records which worker picked up the run
func (s *Store) AssignWorker(ctx context.Context, runID int64, workerID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE report.run SET worker_id = $2 WHERE id = $1`, runID, workerID)
	return err
}

// RecordAttempt bumps the run's attempt counter. GREATEST keeps it monotonic under
// redelivered executions.
func (s *Store) RecordAttempt(ctx context.Context, runID int64, attempt int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE report.run
SET attempts = GREATEST(attempts, $2)
WHERE id = $1
`, runID, attempt)

	return err
}

// UpdateProgress persists the run's progress marker and current step. Progress only
// ever grows, and terminal states freeze it.
func (s *Store) UpdateProgress(ctx context.Context, runID int64, progress int, step string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE report.run
SET progress = GREATEST(progress, $2),
	current_step = $3
WHERE id = $1
  AND status IN ($4, $5)
`, runID, progress, step, models.RunStatusPending, models.RunStatusRunning)

	return err
}

// SaveStepResult persists one step's result payload, skipping duplicates so that
// re-executed attempts can repeat earlier steps safely
func (s *Store) SaveStepResult(ctx context.Context, runID int64, step string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO report.step_result (run_id, step, payload)
VALUES ($1, $2, $3)
ON CONFLICT (run_id, step) DO NOTHING
`, runID, step, payload)

	return err
}

// FinishRun transitions the run into a terminal state. Terminal runs are immutable,
// so the guard means at most one finalization wins.
func (s *Store) FinishRun(ctx context.Context, runID int64, status models.RunStatus, warnings models.WarningMap, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE report.run
SET status = $2,
	warnings = $3,
	error = NULLIF($4, ''),
	completed_at = NOW()
WHERE id = $1
  AND status NOT IN ($5, $6)
`, runID, status, warnings, errMsg, models.RunStatusCompleted, models.RunStatusFailed)

	return err
}

// Heartbeat stamps the run so the rest of the system can tell it is still being
// worked on
func (s *Store) Heartbeat(ctx context.Context, runID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE report.run SET last_heartbeat = NOW() WHERE id = $1`, runID)
	return err
}
