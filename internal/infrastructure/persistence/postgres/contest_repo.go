package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTEST REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ContestRepository reads teams, users and rosters.
type ContestRepository struct {
	conn *Connection
}

// NewContestRepository creates a new ContestRepository.
func NewContestRepository(conn *Connection) *ContestRepository {
	return &ContestRepository{conn: conn}
}

var (
	_ contest.TeamRepository   = (*ContestRepository)(nil)
	_ contest.UserRepository   = (*ContestRepository)(nil)
	_ contest.RosterRepository = (*ContestRepository)(nil)
)

const teamColumns = `id::text, user_id::text, name, season_year, payment_status, entry_status, created_at, deleted_at`

// ─────────────────────────────────────────────────────────────────────────────
// TEAMS
// ─────────────────────────────────────────────────────────────────────────────

// FindTeams returns the teams of a season ordered by creation time.
func (r *ContestRepository) FindTeams(ctx context.Context, filter contest.TeamFilter) ([]*contest.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE season_year = $1`
	switch {
	case filter.EligibleOnly:
		query += ` AND deleted_at IS NULL AND payment_status = 'paid' AND entry_status = 'locked'`
	case !filter.IncludeDeleted:
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.conn.Query(ctx, query, filter.SeasonYear)
	if err != nil {
		return nil, shared.StoreError("contest", "FindTeams", err)
	}
	defer rows.Close()

	var teams []*contest.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, shared.StoreError("contest", "FindTeams", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("contest", "FindTeams", err)
	}
	return teams, nil
}

// FindTeamByID returns a team, including soft-deleted ones.
func (r *ContestRepository) FindTeamByID(ctx context.Context, id string) (*contest.Team, error) {
	t, err := scanTeam(r.conn.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrTeamNotFound
	}
	if err != nil {
		return nil, shared.StoreError("contest", "FindTeamByID", err)
	}
	return t, nil
}

func scanTeam(row pgx.Row) (*contest.Team, error) {
	var t contest.Team
	var payment, entry string
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Name, &t.SeasonYear, &payment, &entry, &t.CreatedAt, &t.DeletedAt,
	); err != nil {
		return nil, err
	}
	t.PaymentStatus = contest.PaymentStatus(payment)
	t.EntryStatus = contest.EntryStatus(entry)
	return &t, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// USERS
// ─────────────────────────────────────────────────────────────────────────────

// FindUserByID returns a user that has not been deleted.
func (r *ContestRepository) FindUserByID(ctx context.Context, id string) (*contest.User, error) {
	var u contest.User
	err := r.conn.QueryRow(ctx, `
		SELECT id::text, username, avatar_url, deleted_at
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&u.ID, &u.Username, &u.AvatarURL, &u.DeletedAt)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, shared.StoreError("contest", "FindUserByID", err)
	}
	return &u, nil
}

// FindUsersByIDs returns the non-deleted users among ids.
func (r *ContestRepository) FindUsersByIDs(ctx context.Context, ids []string) (map[string]*contest.User, error) {
	users := make(map[string]*contest.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id::text, username, avatar_url, deleted_at
		FROM users
		WHERE id = ANY($1::uuid[]) AND deleted_at IS NULL
	`, ids)
	if err != nil {
		return nil, shared.StoreError("contest", "FindUsersByIDs", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u contest.User
		var deletedAt *time.Time
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL, &deletedAt); err != nil {
			return nil, shared.StoreError("contest", "FindUsersByIDs", err)
		}
		u.DeletedAt = deletedAt
		users[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("contest", "FindUsersByIDs", err)
	}
	return users, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ROSTERS
// ─────────────────────────────────────────────────────────────────────────────

const rosterQuery = `
	SELECT tp.team_id::text, tp.player_id::text, p.name, tp.position, tp.slot_order
	FROM team_players tp
	JOIN players p ON p.id = tp.player_id
`

// FindRosterForTeam returns a team's roster in slot order.
func (r *ContestRepository) FindRosterForTeam(ctx context.Context, teamID string) ([]contest.RosterSlot, error) {
	rosters, err := r.queryRosters(ctx, "FindRosterForTeam",
		rosterQuery+` WHERE tp.team_id = $1 ORDER BY tp.slot_order`, teamID)
	if err != nil {
		return nil, err
	}
	return rosters[teamID], nil
}

// FindRostersForTeams returns the rosters of several teams in one query.
func (r *ContestRepository) FindRostersForTeams(ctx context.Context, teamIDs []string) (map[string][]contest.RosterSlot, error) {
	if len(teamIDs) == 0 {
		return map[string][]contest.RosterSlot{}, nil
	}
	return r.queryRosters(ctx, "FindRostersForTeams",
		rosterQuery+` WHERE tp.team_id = ANY($1::uuid[]) ORDER BY tp.team_id, tp.slot_order`, teamIDs)
}

func (r *ContestRepository) queryRosters(ctx context.Context, op, query string, arg any) (map[string][]contest.RosterSlot, error) {
	rows, err := r.conn.Query(ctx, query, arg)
	if err != nil {
		return nil, shared.StoreError("contest", op, err)
	}
	defer rows.Close()

	rosters := make(map[string][]contest.RosterSlot)
	for rows.Next() {
		var s contest.RosterSlot
		if err := rows.Scan(&s.TeamID, &s.PlayerID, &s.PlayerName, &s.Position, &s.Order); err != nil {
			return nil, shared.StoreError("contest", op, err)
		}
		rosters[s.TeamID] = append(rosters[s.TeamID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("contest", op, err)
	}
	return rosters, nil
}
