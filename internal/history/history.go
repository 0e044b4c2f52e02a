// Package history locates prior snapshots inside a tolerance window and computes
// per-keyword rank deltas against them.
package history

import (
	"context"
	"time"

	"github.com/guregu/null/v6"
	"ranktracker/internal/models"
)

// SnapshotStore is the read surface the matcher needs
type SnapshotStore interface {
	// SnapshotsInWindow returns completed snapshots for the domain with
	// created_at in [from, to]
	SnapshotsInWindow(ctx context.Context, domain string, from, to time.Time) ([]models.ReportSnapshot, error)
}

// Offset is one comparison point: how far back to look and how far either side of
// that target a snapshot may land and still count
type Offset struct {
	Days          int
	ToleranceDays int
}

// StandardOffsets are the comparison points reports are built against
var StandardOffsets = []Offset{
	{Days: 7, ToleranceDays: 3},
	{Days: 30, ToleranceDays: 7},
	{Days: 90, ToleranceDays: 14},
}

type Matcher struct {
	store SnapshotStore
}

func NewMatcher(store SnapshotStore) *Matcher {
	return &Matcher{store: store}
}

// FindNearestSnapshot looks for a snapshot around reference minus offsetDays. Among
// snapshots inside the tolerance window it picks the one with the largest created_at,
// favouring recency over proximity to the exact target. Returns nil when the window
// is empty.
func (m *Matcher) FindNearestSnapshot(ctx context.Context, domain string, reference time.Time, offsetDays, toleranceDays int) (*models.ReportSnapshot, error) {
	target := reference.AddDate(0, 0, -offsetDays)
	from := target.AddDate(0, 0, -toleranceDays)
	to := target.AddDate(0, 0, toleranceDays)

	snapshots, err := m.store.SnapshotsInWindow(ctx, domain, from, to)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	best := snapshots[0]
	for _, snap := range snapshots[1:] {
		if snap.CreatedAt.After(best.CreatedAt) {
			best = snap
		}
	}
	return &best, nil
}

// ComputeDelta returns the signed rank change between a current and historical
// position. Lower raw positions are better, so a positive delta is an improvement.
// Null in, null out.
func ComputeDelta(current, historical null.Int) null.Int {
	if !current.Valid || !historical.Valid {
		return null.Int{}
	}
	return null.IntFrom(historical.Int64 - current.Int64)
}

// Trend is the delta set against one offset's matched snapshot
type Trend struct {
	OffsetDays int                 `json:"offset_days"`
	RunID      null.Int            `json:"run_id"` // matched snapshot's run, null if no match
	Deltas     map[string]null.Int `json:"deltas"`
}

// Trends computes per-keyword deltas for the current positions against each standard
// offset. Offsets with no snapshot in their window produce a Trend with a null RunID
// and all-null deltas.
func (m *Matcher) Trends(ctx context.Context, domain string, current models.PositionMap, reference time.Time) ([]Trend, error) {
	trends := make([]Trend, 0, len(StandardOffsets))

	for _, offset := range StandardOffsets {
		snap, err := m.FindNearestSnapshot(ctx, domain, reference, offset.Days, offset.ToleranceDays)
		if err != nil {
			return nil, err
		}

		trend := Trend{
			OffsetDays: offset.Days,
			Deltas:     make(map[string]null.Int, len(current)),
		}
		for keyword, position := range current {
			if snap == nil {
				trend.Deltas[keyword] = null.Int{}
				continue
			}
			trend.Deltas[keyword] = ComputeDelta(position, snap.Positions[keyword])
		}
		if snap != nil {
			trend.RunID = null.IntFrom(snap.RunID)
		}

		trends = append(trends, trend)
	}

	return trends, nil
}
