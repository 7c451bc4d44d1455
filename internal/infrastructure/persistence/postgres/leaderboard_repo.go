package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Store for PostgreSQL.
type LeaderboardRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

var _ leaderboard.Store = (*LeaderboardRepository)(nil)

const entryColumns = `id::text, team_id::text, leaderboard_type, season_year, period, rank, total_score, calculated_at`

// ─────────────────────────────────────────────────────────────────────────────
// FULL REPLACE
// ─────────────────────────────────────────────────────────────────────────────

// ReplaceBoard deletes the board and inserts the new entries in one
// transaction, so readers see either the old board or the new one.
func (r *LeaderboardRepository) ReplaceBoard(ctx context.Context, key leaderboard.BoardKey, entries []leaderboard.Entry) error {
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM leaderboard_entries
			WHERE leaderboard_type = $1 AND season_year = $2 AND period = $3
		`, string(key.Type), key.SeasonYear, key.Period); err != nil {
			return fmt.Errorf("failed to clear board %s: %w", key, err)
		}

		if len(entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			id := e.ID
			if id == "" {
				id = uuid.NewString()
			}
			batch.Queue(`
				INSERT INTO leaderboard_entries
				(id, team_id, leaderboard_type, season_year, period, rank, total_score, calculated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`,
				id,
				e.TeamID,
				string(key.Type),
				key.SeasonYear,
				key.Period,
				int(e.Rank),
				e.TotalScore,
				e.CalculatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for _, e := range entries {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert entry for team %s: %w", e.TeamID, err)
			}
		}
		return br.Close()
	})
	return shared.StoreError("leaderboard", "ReplaceBoard", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// INCREMENTAL MEMBERSHIP
// ─────────────────────────────────────────────────────────────────────────────

// EnsureEnrolled inserts a zero-score placeholder ranked after every scoring
// entry. Its rank is one plus the number of entries above zero, so it ties
// with other zero entries the way competition ranking does. Concurrent calls
// for the same team race on the unique constraint; the loser gets no row
// back and reads the winner's entry.
func (r *LeaderboardRepository) EnsureEnrolled(ctx context.Context, teamID string, key leaderboard.BoardKey) (leaderboard.Entry, bool, error) {
	row := r.conn.QueryRow(ctx, `
		INSERT INTO leaderboard_entries
		(id, team_id, leaderboard_type, season_year, period, rank, total_score, calculated_at)
		SELECT $1, $2, $3, $4, $5, COUNT(*) FILTER (WHERE total_score > 0) + 1, 0, $6
		FROM leaderboard_entries
		WHERE leaderboard_type = $3 AND season_year = $4 AND period = $5
		ON CONFLICT ON CONSTRAINT uq_leaderboard_entry DO NOTHING
		RETURNING `+entryColumns,
		uuid.NewString(),
		teamID,
		string(key.Type),
		key.SeasonYear,
		key.Period,
		r.now(),
	)

	entry, err := scanEntry(row)
	if err == nil {
		return entry, true, nil
	}
	if !IsNoRows(err) && !IsUniqueViolation(err) {
		return leaderboard.Entry{}, false, shared.StoreError("leaderboard", "EnsureEnrolled", err)
	}

	existing, err := scanEntry(r.conn.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE team_id = $1 AND leaderboard_type = $2 AND season_year = $3 AND period = $4
	`, teamID, string(key.Type), key.SeasonYear, key.Period))
	if err != nil {
		return leaderboard.Entry{}, false, shared.StoreError("leaderboard", "EnsureEnrolled", err)
	}
	return existing, false, nil
}

// RemoveEnrollment deletes the team from every board of the season.
func (r *LeaderboardRepository) RemoveEnrollment(ctx context.Context, teamID string, seasonYear int) ([]leaderboard.BoardKey, error) {
	rows, err := r.conn.Query(ctx, `
		DELETE FROM leaderboard_entries
		WHERE team_id = $1 AND season_year = $2
		RETURNING leaderboard_type, period
	`, teamID, seasonYear)
	if err != nil {
		return nil, shared.StoreError("leaderboard", "RemoveEnrollment", err)
	}
	defer rows.Close()

	var keys []leaderboard.BoardKey
	for rows.Next() {
		var boardType string
		var period int
		if err := rows.Scan(&boardType, &period); err != nil {
			return nil, shared.StoreError("leaderboard", "RemoveEnrollment", err)
		}
		keys = append(keys, leaderboard.BoardKey{
			Type:       leaderboard.BoardType(boardType),
			SeasonYear: seasonYear,
			Period:     period,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("leaderboard", "RemoveEnrollment", err)
	}
	return keys, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// READS
// ─────────────────────────────────────────────────────────────────────────────

// ListBoard returns the entries of a board ordered by rank.
func (r *LeaderboardRepository) ListBoard(ctx context.Context, key leaderboard.BoardKey) ([]leaderboard.Entry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE leaderboard_type = $1 AND season_year = $2 AND period = $3
		ORDER BY rank ASC, total_score DESC, team_id ASC
	`, string(key.Type), key.SeasonYear, key.Period)
	if err != nil {
		return nil, shared.StoreError("leaderboard", "ListBoard", err)
	}
	defer rows.Close()

	var entries []leaderboard.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, shared.StoreError("leaderboard", "ListBoard", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("leaderboard", "ListBoard", err)
	}
	return entries, nil
}

// ListStandings returns the board joined with teams and users in one query.
// Soft-deleted teams are filtered by the join.
func (r *LeaderboardRepository) ListStandings(ctx context.Context, key leaderboard.BoardKey) ([]leaderboard.StandingRow, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT
			le.id::text, le.team_id::text, le.leaderboard_type, le.season_year, le.period,
			le.rank, le.total_score, le.calculated_at,
			t.name, t.user_id::text,
			COALESCE(u.username, ''), COALESCE(u.avatar_url, '')
		FROM leaderboard_entries le
		JOIN teams t ON t.id = le.team_id AND t.deleted_at IS NULL
		LEFT JOIN users u ON u.id = t.user_id AND u.deleted_at IS NULL
		WHERE le.leaderboard_type = $1 AND le.season_year = $2 AND le.period = $3
		ORDER BY le.rank ASC, t.name ASC
	`, string(key.Type), key.SeasonYear, key.Period)
	if err != nil {
		return nil, shared.StoreError("leaderboard", "ListStandings", err)
	}
	defer rows.Close()

	var result []leaderboard.StandingRow
	for rows.Next() {
		var sr leaderboard.StandingRow
		var boardType string
		var rank int
		if err := rows.Scan(
			&sr.ID, &sr.TeamID, &boardType, &sr.Key.SeasonYear, &sr.Key.Period,
			&rank, &sr.TotalScore, &sr.CalculatedAt,
			&sr.TeamName, &sr.UserID,
			&sr.Username, &sr.AvatarURL,
		); err != nil {
			return nil, shared.StoreError("leaderboard", "ListStandings", err)
		}
		sr.Key.Type = leaderboard.BoardType(boardType)
		sr.Rank = leaderboard.Rank(rank)
		result = append(result, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("leaderboard", "ListStandings", err)
	}
	return result, nil
}

func scanEntry(row pgx.Row) (leaderboard.Entry, error) {
	var e leaderboard.Entry
	var boardType string
	var rank int
	err := row.Scan(
		&e.ID, &e.TeamID, &boardType, &e.Key.SeasonYear, &e.Key.Period,
		&rank, &e.TotalScore, &e.CalculatedAt,
	)
	if err != nil {
		return leaderboard.Entry{}, err
	}
	e.Key.Type = leaderboard.BoardType(boardType)
	e.Rank = leaderboard.Rank(rank)
	return e, nil
}
