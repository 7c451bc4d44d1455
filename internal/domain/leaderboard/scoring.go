package leaderboard

import (
	"sort"

	"github.com/hrderby/contest-hub/internal/domain/contest"
	"github.com/hrderby/contest-hub/internal/domain/stats"
)

// ScoringRule is the best-K-of-N selection rule.
type ScoringRule struct {
	// K is the number of players that count towards the team total.
	K int
	// N is the roster size the rule is written for.
	N int
}

// DefaultScoringRule counts the best 7 of 8 players.
var DefaultScoringRule = ScoringRule{K: 7, N: contest.RosterSize}

// PlayerScore is one roster player's contribution.
type PlayerScore struct {
	PlayerID   string
	PlayerName string
	Position   string
	Value      int
	Included   bool
}

// TeamScore is the derived score of one team. It is never persisted.
type TeamScore struct {
	TeamID     string
	TeamName   string
	TotalScore int
	// Players are ordered by value, highest first.
	Players []PlayerScore
}

// IncludedCount returns how many players counted towards the total.
func (s TeamScore) IncludedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Included {
			n++
		}
	}
	return n
}

// ComputeTeamScore applies the best-k rule to a roster. A player without a
// snapshot scores 0. Equal values keep roster order, so the k-th cutoff
// between tied players goes to the one listed first.
func ComputeTeamScore(roster []contest.RosterSlot, snapshots map[string]stats.Snapshot, k int) TeamScore {
	players := make([]PlayerScore, len(roster))
	for i, slot := range roster {
		players[i] = PlayerScore{
			PlayerID:   slot.PlayerID,
			PlayerName: slot.PlayerName,
			Position:   slot.Position,
			Value:      snapshots[slot.PlayerID].HomeRunsTotal,
		}
	}

	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Value > players[j].Value
	})

	total := 0
	for i := range players {
		if i < k {
			players[i].Included = true
			total += players[i].Value
		}
	}

	var teamID string
	if len(roster) > 0 {
		teamID = roster[0].TeamID
	}

	return TeamScore{
		TeamID:     teamID,
		TotalScore: total,
		Players:    players,
	}
}

// Score applies the rule to a roster.
func (r ScoringRule) Score(team *contest.Team, roster []contest.RosterSlot, snapshots map[string]stats.Snapshot) TeamScore {
	s := ComputeTeamScore(roster, snapshots, r.K)
	if team != nil {
		s.TeamID = team.ID
		s.TeamName = team.Name
	}
	return s
}
