// Package stats models the per-player home-run snapshots written by the
// nightly ingestion job and selects the values the scoring engine uses.
package stats

import (
	"context"
	"time"
)

// Snapshot is the statistic line of one player on one calendar day.
// HomeRunsTotal is cumulative for the season up to and including Date.
type Snapshot struct {
	PlayerID              string
	SeasonYear            int
	Date                  time.Time
	HomeRunsDaily         int
	HomeRunsTotal         int
	HomeRunsRegularSeason int
	HomeRunsPostseason    int
	LastUpdated           time.Time
}

// Newer reports whether s was observed after other. Ties on Date fall back to
// LastUpdated so that a corrected row for the same day wins.
func (s Snapshot) Newer(other Snapshot) bool {
	if !s.Date.Equal(other.Date) {
		return s.Date.After(other.Date)
	}
	return s.LastUpdated.After(other.LastUpdated)
}

// SnapshotFilter narrows FindSnapshots by date. Zero values disable a bound.
type SnapshotFilter struct {
	// Before is an exclusive upper bound on Date.
	Before time.Time
}

// SnapshotRepository reads snapshots. Implementations return every matching
// row; picking the latest per player is done by the caller.
type SnapshotRepository interface {
	FindSnapshots(ctx context.Context, playerIDs []string, seasonYear int, filter SnapshotFilter) ([]Snapshot, error)

	// LatestStatsDate returns the most recent day with any stats for the season.
	// ok is false when the season has no stats yet.
	LatestStatsDate(ctx context.Context, seasonYear int) (date time.Time, ok bool, err error)
}

// LatestByPlayer keeps the most recent snapshot of every player.
func LatestByPlayer(snapshots []Snapshot) map[string]Snapshot {
	latest := make(map[string]Snapshot, len(snapshots))
	for _, s := range snapshots {
		cur, ok := latest[s.PlayerID]
		if !ok || s.Newer(cur) {
			latest[s.PlayerID] = s
		}
	}
	return latest
}

// Delta returns the change between two cumulative snapshots of the same
// player. A zero base means the player had no stats before the window.
func Delta(end, base Snapshot) Snapshot {
	d := end
	d.HomeRunsTotal = clampZero(end.HomeRunsTotal - base.HomeRunsTotal)
	d.HomeRunsRegularSeason = clampZero(end.HomeRunsRegularSeason - base.HomeRunsRegularSeason)
	d.HomeRunsPostseason = clampZero(end.HomeRunsPostseason - base.HomeRunsPostseason)
	return d
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
