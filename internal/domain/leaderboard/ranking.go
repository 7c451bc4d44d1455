package leaderboard

import "sort"

// TeamTotal is the input of the ranking step.
type TeamTotal struct {
	TeamID     string
	TotalScore int
}

// RankedTeam is a team total with its competition rank.
type RankedTeam struct {
	TeamTotal
	Rank Rank
}

// AssignRanks orders totals highest first and assigns competition ranks:
// tied totals share a rank and the next distinct total takes its 1-based
// position (1, 1, 3). Equal totals keep their input order.
func AssignRanks(totals []TeamTotal) []RankedTeam {
	ranked := make([]RankedTeam, len(totals))
	for i, t := range totals {
		ranked[i] = RankedTeam{TeamTotal: t}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})

	for i := range ranked {
		if i > 0 && ranked[i].TotalScore == ranked[i-1].TotalScore {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = Rank(i + 1)
	}
	return ranked
}

// TotalsFromScores extracts ranking input from computed team scores.
func TotalsFromScores(scores []TeamScore) []TeamTotal {
	totals := make([]TeamTotal, len(scores))
	for i, s := range scores {
		totals[i] = TeamTotal{TeamID: s.TeamID, TotalScore: s.TotalScore}
	}
	return totals
}
