// Package leaderboard holds the scoring and ranking model of the contest:
// the best-K-of-N team score, competition ranks, board keys and the ports the
// engine uses to persist and cache boards.
package leaderboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hrderby/contest-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// BoardType distinguishes season-long boards from periodic ones.
type BoardType string

const (
	// BoardOverall is the season-long board.
	BoardOverall BoardType = "overall"
	// BoardMonthly ranks the home runs hit within one calendar month.
	BoardMonthly BoardType = "monthly"
)

// ParseBoardType converts user input into a BoardType.
func ParseBoardType(s string) (BoardType, error) {
	t := BoardType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", shared.ErrInvalidBoardType
	}
	return t, nil
}

// IsValid reports whether the type is known.
func (t BoardType) IsValid() bool {
	return t == BoardOverall || t == BoardMonthly
}

// IsPeriodic reports whether boards of this type carry a period.
func (t BoardType) IsPeriodic() bool {
	return t == BoardMonthly
}

// Rank is a 1-based competition rank.
type Rank int

// IsValid reports whether the rank is positive.
func (r Rank) IsValid() bool {
	return r > 0
}

// String returns the rank as "#n".
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// Valid season bounds.
const (
	MinSeasonYear = 2000
	MaxSeasonYear = 2100
)

// SeasonLong is the period value of boards that span the whole season.
const SeasonLong = 0

// ══════════════════════════════════════════════════════════════════════════════
// BOARD KEY
// ══════════════════════════════════════════════════════════════════════════════

// BoardKey identifies a board. Period is SeasonLong for overall boards and the
// month number (1..12) for monthly boards.
type BoardKey struct {
	Type       BoardType
	SeasonYear int
	Period     int
}

// OverallKey returns the key of the season-long board.
func OverallKey(seasonYear int) BoardKey {
	return BoardKey{Type: BoardOverall, SeasonYear: seasonYear, Period: SeasonLong}
}

// MonthlyKey returns the key of a monthly board.
func MonthlyKey(seasonYear, month int) BoardKey {
	return BoardKey{Type: BoardMonthly, SeasonYear: seasonYear, Period: month}
}

// NewBoardKey builds and validates a key.
func NewBoardKey(t BoardType, seasonYear, period int) (BoardKey, error) {
	k := BoardKey{Type: t, SeasonYear: seasonYear, Period: period}
	return k, k.Validate()
}

// Validate checks the key invariants.
func (k BoardKey) Validate() error {
	if !k.Type.IsValid() {
		return shared.ErrInvalidBoardType
	}
	if k.SeasonYear < MinSeasonYear || k.SeasonYear > MaxSeasonYear {
		return shared.ErrInvalidSeason
	}
	switch k.Type {
	case BoardOverall:
		if k.Period != SeasonLong {
			return shared.ErrInvalidPeriod
		}
	case BoardMonthly:
		if k.Period < 1 || k.Period > 12 {
			return shared.ErrInvalidPeriod
		}
	}
	return nil
}

// IsSeasonLong reports whether the key has no period.
func (k BoardKey) IsSeasonLong() bool {
	return k.Period == SeasonLong
}

// CacheKey returns "type:season" or "type:season:period".
func (k BoardKey) CacheKey() string {
	base := string(k.Type) + ":" + strconv.Itoa(k.SeasonYear)
	if k.IsSeasonLong() {
		return base
	}
	return base + ":" + strconv.Itoa(k.Period)
}

// String implements fmt.Stringer.
func (k BoardKey) String() string {
	return k.CacheKey()
}

// KeyScopes returns the invalidation scopes covering a cache key, outermost
// first: "monthly:2026:4" is covered by "monthly", "monthly:2026" and itself.
func KeyScopes(key string) []string {
	var scopes []string
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			scopes = append(scopes, key[:i])
		}
	}
	return append(scopes, key)
}

// SeasonPrefix returns the cache prefix covering every board of a type in a season.
func SeasonPrefix(t BoardType, seasonYear int) string {
	return string(t) + ":" + strconv.Itoa(seasonYear)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one persisted row of a board.
type Entry struct {
	ID           string
	TeamID       string
	Key          BoardKey
	Rank         Rank
	TotalScore   int
	CalculatedAt time.Time
}

// EntriesFromRanking turns ranked totals into entries for a board.
func EntriesFromRanking(key BoardKey, ranked []RankedTeam, calculatedAt time.Time) []Entry {
	entries := make([]Entry, len(ranked))
	for i, r := range ranked {
		entries[i] = Entry{
			TeamID:       r.TeamID,
			Key:          key,
			Rank:         r.Rank,
			TotalScore:   r.TotalScore,
			CalculatedAt: calculatedAt,
		}
	}
	return entries
}
