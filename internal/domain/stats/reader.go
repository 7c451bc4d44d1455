package stats

import (
	"context"
	"time"
)

// Reader selects scoring values from raw snapshots. Each method issues a
// single repository query regardless of how many players are requested.
type Reader struct {
	repo SnapshotRepository
}

// NewReader creates a Reader over the repository.
func NewReader(repo SnapshotRepository) *Reader {
	return &Reader{repo: repo}
}

// LatestForPlayers returns the most recent snapshot of every requested player
// that has one. Players without stats are absent from the map.
func (r *Reader) LatestForPlayers(ctx context.Context, playerIDs []string, seasonYear int) (map[string]Snapshot, error) {
	return r.LatestAsOf(ctx, playerIDs, seasonYear, time.Time{})
}

// LatestAsOf is LatestForPlayers restricted to snapshots dated before the
// given day. A zero before means no bound.
func (r *Reader) LatestAsOf(ctx context.Context, playerIDs []string, seasonYear int, before time.Time) (map[string]Snapshot, error) {
	if len(playerIDs) == 0 {
		return map[string]Snapshot{}, nil
	}
	rows, err := r.repo.FindSnapshots(ctx, playerIDs, seasonYear, SnapshotFilter{Before: before})
	if err != nil {
		return nil, err
	}
	return LatestByPlayer(rows), nil
}

// WindowSnapshots returns, per player, the home runs hit in [from, to): the
// latest cumulative snapshot before to minus the latest one before from.
// Players with no snapshot inside the window are absent.
func (r *Reader) WindowSnapshots(ctx context.Context, playerIDs []string, seasonYear int, from, to time.Time) (map[string]Snapshot, error) {
	if len(playerIDs) == 0 {
		return map[string]Snapshot{}, nil
	}
	rows, err := r.repo.FindSnapshots(ctx, playerIDs, seasonYear, SnapshotFilter{Before: to})
	if err != nil {
		return nil, err
	}

	var before, within []Snapshot
	for _, s := range rows {
		if s.Date.Before(from) {
			before = append(before, s)
		} else {
			within = append(within, s)
		}
	}

	base := LatestByPlayer(before)
	end := LatestByPlayer(within)
	out := make(map[string]Snapshot, len(end))
	for id, s := range end {
		out[id] = Delta(s, base[id])
	}
	return out, nil
}

// LatestStatsDate returns the most recent day with stats for the season.
func (r *Reader) LatestStatsDate(ctx context.Context, seasonYear int) (time.Time, bool, error) {
	return r.repo.LatestStatsDate(ctx, seasonYear)
}
