package contest

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// TeamFilter selects teams for a season.
type TeamFilter struct {
	SeasonYear int
	// EligibleOnly keeps paid, locked, non-deleted teams.
	EligibleOnly bool
	// IncludeDeleted returns soft-deleted teams as well. Ignored when
	// EligibleOnly is set.
	IncludeDeleted bool
}

// TeamRepository reads teams.
type TeamRepository interface {
	// FindTeams returns the teams matching the filter ordered by creation time.
	FindTeams(ctx context.Context, filter TeamFilter) ([]*Team, error)

	// FindTeamByID returns the team or shared.ErrTeamNotFound.
	// Soft-deleted teams are returned; callers decide what to do with them.
	FindTeamByID(ctx context.Context, id string) (*Team, error)
}

// UserRepository reads users.
type UserRepository interface {
	// FindUserByID returns the user or shared.ErrUserNotFound.
	FindUserByID(ctx context.Context, id string) (*User, error)

	// FindUsersByIDs returns the users that exist, keyed by ID.
	// Missing IDs are absent from the map, not an error.
	FindUsersByIDs(ctx context.Context, ids []string) (map[string]*User, error)
}

// RosterRepository reads team rosters.
type RosterRepository interface {
	// FindRosterForTeam returns the roster in slot order. An empty roster is
	// not an error.
	FindRosterForTeam(ctx context.Context, teamID string) ([]RosterSlot, error)

	// FindRostersForTeams returns the rosters of several teams in one query,
	// keyed by team ID, each in slot order.
	FindRostersForTeams(ctx context.Context, teamIDs []string) (map[string][]RosterSlot, error)
}
