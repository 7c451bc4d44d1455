// Package timeutil holds the contest calendar: stats days are Eastern Time
// calendar days, and periodic boards are calendar months within a season.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // the contest zone must resolve in minimal containers
)

// ContestZone is the zone stats days are recorded in.
const ContestZone = "America/New_York"

var contestLoc = mustLoad(ContestZone)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("timeutil: load %s: %v", name, err))
	}
	return loc
}

// Location returns the contest time zone.
func Location() *time.Location {
	return contestLoc
}

// Now returns the current time in the contest zone.
func Now() time.Time {
	return time.Now().In(contestLoc)
}

// Day returns the contest calendar day of t as midnight UTC, the form DATE
// columns are scanned into.
func Day(t time.Time) time.Time {
	local := t.In(contestLoc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// StatsDay returns the most recent day the nightly import covers: yesterday
// in the contest zone.
func StatsDay(now time.Time) time.Time {
	return Day(now).AddDate(0, 0, -1)
}

// MonthWindow returns [from, to) covering a calendar month as DATE values.
func MonthWindow(seasonYear, month int) (from, to time.Time) {
	from = time.Date(seasonYear, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// SeasonMonths lists the months from first to last inclusive.
func SeasonMonths(first, last int) []int {
	if first < 1 {
		first = 1
	}
	if last > 12 {
		last = 12
	}
	var months []int
	for m := first; m <= last; m++ {
		months = append(months, m)
	}
	return months
}

// MonthsThrough returns the season months that have started by now.
func MonthsThrough(seasonYear int, months []int, now time.Time) []int {
	today := Day(now)
	var started []int
	for _, m := range months {
		from, _ := MonthWindow(seasonYear, m)
		if !from.After(today) {
			started = append(started, m)
		}
	}
	return started
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("timeutil: invalid clock %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("timeutil: invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("timeutil: invalid minute in %q", s)
	}
	return hour, minute, nil
}

// NextClock returns the next occurrence of hour:minute in loc strictly after t.
func NextClock(t time.Time, hour, minute int, loc *time.Location) time.Time {
	local := t.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
