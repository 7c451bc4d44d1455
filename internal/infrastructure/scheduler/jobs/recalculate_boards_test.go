package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/pkg/logger"
)

type fakeCalculator struct {
	CalculateSeasonFunc func(ctx context.Context, seasonYear int) (*command.CalculateSeasonResult, error)
	seasons             []int
}

func (f *fakeCalculator) CalculateSeason(ctx context.Context, seasonYear int) (*command.CalculateSeasonResult, error) {
	f.seasons = append(f.seasons, seasonYear)
	return f.CalculateSeasonFunc(ctx, seasonYear)
}

func TestRecalculateBoardsJob_Run(t *testing.T) {
	through := time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC)
	calc := &fakeCalculator{CalculateSeasonFunc: func(_ context.Context, season int) (*command.CalculateSeasonResult, error) {
		return &command.CalculateSeasonResult{
			SeasonYear: season,
			Boards: []*command.CalculateBoardResult{
				{Entries: make([]leaderboard.Entry, 3), Skipped: []command.SkippedTeam{{TeamID: "x"}}, StatsThrough: through},
				{Entries: make([]leaderboard.Entry, 2)},
			},
		}, nil
	}}

	job := NewRecalculateBoardsJob(calc, logger.Discard(), RecalculateBoardsConfig{Season: func() int { return 2026 }})
	assert.Nil(t, job.LastStats())
	assert.Equal(t, "recalculate_boards", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []int{2026}, calc.seasons)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2026, stats.SeasonYear)
	assert.Equal(t, 2, stats.Boards)
	assert.Equal(t, 5, stats.Entries)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, through, stats.StatsThrough)
}

func TestRecalculateBoardsJob_Failure(t *testing.T) {
	boom := errors.New("db down")
	calc := &fakeCalculator{CalculateSeasonFunc: func(context.Context, int) (*command.CalculateSeasonResult, error) {
		return nil, boom
	}}
	job := NewRecalculateBoardsJob(calc, logger.Discard(), RecalculateBoardsConfig{Season: func() int { return 2026 }})

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, job.LastStats())
}

func TestRecalculateBoardsJob_Timeout(t *testing.T) {
	calc := &fakeCalculator{CalculateSeasonFunc: func(ctx context.Context, _ int) (*command.CalculateSeasonResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	job := NewRecalculateBoardsJob(calc, logger.Discard(), RecalculateBoardsConfig{
		Timeout: 10 * time.Millisecond,
		Season:  func() int { return 2026 },
	})

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}
