package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/hrderby/contest-hub/pkg/timeutil"
)

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first run strictly after t.
	Next(t time.Time) time.Time
	String() string
}

// IntervalSchedule runs a job every Interval.
type IntervalSchedule struct {
	Interval time.Duration
}

func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time { return t.Add(s.Interval) }

func (s *IntervalSchedule) String() string { return "@every " + s.Interval.String() }

// DailySchedule runs a job once a day at a wall-clock time in a location.
// Daylight saving shifts follow the location.
type DailySchedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// NewDailySchedule parses "HH:MM". A nil location means the contest zone.
func NewDailySchedule(clock string, loc *time.Location) (*DailySchedule, error) {
	h, m, err := timeutil.ParseClock(clock)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = timeutil.Location()
	}
	return &DailySchedule{Hour: h, Minute: m, Location: loc}, nil
}

func (s *DailySchedule) Next(t time.Time) time.Time {
	return timeutil.NextClock(t, s.Hour, s.Minute, s.Location)
}

func (s *DailySchedule) String() string {
	return fmt.Sprintf("@daily %02d:%02d %s", s.Hour, s.Minute, s.Location)
}

// AnySchedule fires at the earliest of several schedules, e.g. the nightly
// run plus an intra-day refresh.
type AnySchedule []Schedule

func (a AnySchedule) Next(t time.Time) time.Time {
	var next time.Time
	for _, s := range a {
		if n := s.Next(t); next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

func (a AnySchedule) String() string {
	parts := make([]string, len(a))
	for i, s := range a {
		parts[i] = s.String()
	}
	return strings.Join(parts, " | ")
}
