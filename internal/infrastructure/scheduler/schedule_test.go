package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailySchedule_Next(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s, err := NewDailySchedule("06:30", ny)
	require.NoError(t, err)

	before := time.Date(2026, 6, 1, 5, 0, 0, 0, ny)
	assert.Equal(t, time.Date(2026, 6, 1, 6, 30, 0, 0, ny), s.Next(before))

	at := time.Date(2026, 6, 1, 6, 30, 0, 0, ny)
	assert.Equal(t, time.Date(2026, 6, 2, 6, 30, 0, 0, ny), s.Next(at))

	// 2026-11-01 is the end of daylight saving in New York.
	dst := time.Date(2026, 10, 31, 12, 0, 0, 0, ny)
	next := s.Next(dst)
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 1, next.Day())

	assert.Equal(t, "@daily 06:30 America/New_York", s.String())
}

func TestNewDailySchedule_Invalid(t *testing.T) {
	_, err := NewDailySchedule("25:00", nil)
	assert.Error(t, err)
	_, err = NewDailySchedule("noon", nil)
	assert.Error(t, err)
}

func TestAnySchedule(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	a := AnySchedule{NewIntervalSchedule(time.Hour), NewIntervalSchedule(10 * time.Minute)}
	assert.Equal(t, base.Add(10*time.Minute), a.Next(base))
	assert.Equal(t, "@every 1h0m0s | @every 10m0s", a.String())
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(90 * time.Minute)
	base := time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 2, 0, 30, 0, 0, time.UTC), s.Next(base))
	assert.Equal(t, "@every 1h30m0s", s.String())
}
