package postgres

import (
	"context"
	"time"

	"github.com/hrderby/contest-hub/internal/domain/shared"
	"github.com/hrderby/contest-hub/internal/domain/stats"
)

// StatsRepository reads player_stats rows written by the stats importer.
type StatsRepository struct {
	conn *Connection
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(conn *Connection) *StatsRepository {
	return &StatsRepository{conn: conn}
}

var _ stats.SnapshotRepository = (*StatsRepository)(nil)

// FindSnapshots returns every snapshot of the players for the season in a
// single query. Selecting the latest per player is left to the caller.
func (r *StatsRepository) FindSnapshots(ctx context.Context, playerIDs []string, seasonYear int, filter stats.SnapshotFilter) ([]stats.Snapshot, error) {
	if len(playerIDs) == 0 {
		return nil, nil
	}

	var before *time.Time
	if !filter.Before.IsZero() {
		before = &filter.Before
	}

	rows, err := r.conn.Query(ctx, `
		SELECT player_id::text, season_year, date, hrs_daily, hrs_total,
		       hrs_regular_season, hrs_postseason, last_updated
		FROM player_stats
		WHERE player_id = ANY($1::uuid[])
		  AND season_year = $2
		  AND ($3::date IS NULL OR date < $3::date)
		ORDER BY player_id, date
	`, playerIDs, seasonYear, before)
	if err != nil {
		return nil, shared.StoreError("stats", "FindSnapshots", err)
	}
	defer rows.Close()

	var snapshots []stats.Snapshot
	for rows.Next() {
		var s stats.Snapshot
		if err := rows.Scan(
			&s.PlayerID, &s.SeasonYear, &s.Date, &s.HomeRunsDaily, &s.HomeRunsTotal,
			&s.HomeRunsRegularSeason, &s.HomeRunsPostseason, &s.LastUpdated,
		); err != nil {
			return nil, shared.StoreError("stats", "FindSnapshots", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("stats", "FindSnapshots", err)
	}
	return snapshots, nil
}

// LatestStatsDate returns the most recent day with stats for the season.
func (r *StatsRepository) LatestStatsDate(ctx context.Context, seasonYear int) (time.Time, bool, error) {
	var latest *time.Time
	err := r.conn.QueryRow(ctx, `
		SELECT MAX(date) FROM player_stats WHERE season_year = $1
	`, seasonYear).Scan(&latest)
	if err != nil {
		return time.Time{}, false, shared.StoreError("stats", "LatestStatsDate", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}
