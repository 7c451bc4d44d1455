// Package contest holds the contest entities the leaderboard engine reads:
// teams, their owners and their rosters.
//
// The engine never writes these records. Registration, payment approval and
// roster locking happen elsewhere; the only signal this package carries about
// that lifecycle is Team.IsEligible, which decides whether a team belongs on a
// full board.
//
// # Rosters
//
// A locked roster has exactly RosterSize players, each tagged with a position
// slot. Readers must tolerate other sizes: a team whose roster is incomplete
// simply scores fewer players.
//
//	roster, err := rosters.FindRosterForTeam(ctx, teamID)
//	if err != nil {
//	    return err
//	}
//	ids := contest.PlayerIDs(roster)
package contest
