package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
)

func TestCachedStandings_RoundTripKeepsBreakdown(t *testing.T) {
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	in := &leaderboard.Standings{
		Key:         leaderboard.OverallKey(2026),
		GeneratedAt: at,
		Entries: []leaderboard.Standing{{
			Rank: 1, TeamID: "t1", TeamName: "Aces", TotalScore: 12,
			UserID: "u1", Username: "slugger", CalculatedAt: at,
			Players: []leaderboard.PlayerScore{
				{PlayerID: "p1", PlayerName: "Judge", Value: 12, Included: true},
				{PlayerID: "p2", PlayerName: "Soto", Value: 0, Included: false},
			},
		}},
	}

	out := toCached(in).toDomain()

	assert.Equal(t, in, out)
}

func TestEscapePattern(t *testing.T) {
	assert.Equal(t, `contest:overall:2026`, escapePattern("contest:overall:2026"))
	assert.Equal(t, `a\*b\?\[c\]`, escapePattern("a*b?[c]"))
}

func TestBoardCache_CountersCoverEveryScope(t *testing.T) {
	bc := NewBoardCache(nil, "test:", nil, nil)
	assert.Equal(t,
		[]string{"test:gen:monthly", "test:gen:monthly:2026", "test:gen:monthly:2026:4"},
		bc.counters("monthly:2026:4"))
}

func TestSumCounters(t *testing.T) {
	sum, err := sumCounters([]any{"3", nil, "4"})
	require.NoError(t, err)
	assert.EqualValues(t, 7, sum)

	_, err = sumCounters([]any{"seven"})
	assert.Error(t, err)
}
