package store

import (
	"context"
	"time"

	"ranktracker/internal/models"
)

// SaveSnapshot persists the per-keyword positions of a run. The insert skips
// duplicates so a re-executed snapshot step is a no-op.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot models.ReportSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO report.snapshot (run_id, domain, positions)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO NOTHING
`, snapshot.RunID, snapshot.Domain, snapshot.Positions)

	return err
}

// SnapshotsInWindow returns the domain's snapshots created inside [from, to] whose
// runs finished successfully. Bounds are inclusive.
func (s *Store) SnapshotsInWindow(ctx context.Context, domain string, from, to time.Time) ([]models.ReportSnapshot, error) {
	var snapshots []models.ReportSnapshot
	query := `
SELECT sn.run_id, sn.domain, sn.created_at, sn.positions
FROM report.snapshot sn
JOIN report.run r ON r.id = sn.run_id
WHERE sn.domain = $1
  AND sn.created_at BETWEEN $2 AND $3
  AND r.status = $4
ORDER BY sn.created_at
`

	if err := s.db.SelectContext(ctx, &snapshots, query, domain, from, to, models.RunStatusCompleted); err != nil {
		return nil, err
	}
	return snapshots, nil
}
