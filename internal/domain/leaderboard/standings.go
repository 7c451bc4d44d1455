package leaderboard

import "time"

// StandingRow is a board entry joined with its team and owner.
type StandingRow struct {
	Entry
	TeamName  string
	UserID    string
	Username  string
	AvatarURL string
}

// Standing is one display row of a board.
type Standing struct {
	Rank         Rank
	TeamID       string
	TeamName     string
	TotalScore   int
	UserID       string
	Username     string
	AvatarURL    string
	CalculatedAt time.Time
	// Players is the per-player breakdown; only filled for overall boards.
	Players []PlayerScore
}

// Standings is a fully assembled board as served to readers.
type Standings struct {
	Key         BoardKey
	Entries     []Standing
	GeneratedAt time.Time
}

// Len returns the number of rows.
func (s *Standings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// CalculatedAt returns the most recent calculation time across rows.
func (s *Standings) CalculatedAt() time.Time {
	var latest time.Time
	if s == nil {
		return latest
	}
	for _, e := range s.Entries {
		if e.CalculatedAt.After(latest) {
			latest = e.CalculatedAt
		}
	}
	return latest
}

// Find returns the row of a team.
func (s *Standings) Find(teamID string) (Standing, bool) {
	if s == nil {
		return Standing{}, false
	}
	for _, e := range s.Entries {
		if e.TeamID == teamID {
			return e, true
		}
	}
	return Standing{}, false
}

// StandingFromRow converts a joined row into a display row.
func StandingFromRow(r StandingRow) Standing {
	return Standing{
		Rank:         r.Rank,
		TeamID:       r.TeamID,
		TeamName:     r.TeamName,
		TotalScore:   r.TotalScore,
		UserID:       r.UserID,
		Username:     r.Username,
		AvatarURL:    r.AvatarURL,
		CalculatedAt: r.CalculatedAt,
	}
}
