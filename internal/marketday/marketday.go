// Package marketday isolates the day-boundary arithmetic for the local
// gold market. Prices are observed and charted against IST calendar days,
// while every timestamp in the store is UTC; naive UTC truncation shifts
// any observation made before 05:30 IST onto the wrong day, so all
// boundary math goes through here.
package marketday

import "time"

// IST is the market timezone (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// DayWindowUTC returns the half-open UTC window [start, end) covering the
// calendar day in loc that contains t.
func DayWindowUTC(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// DateIn returns t's calendar date in loc, normalized to midnight local.
func DateIn(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Yesterday returns the UTC window for the calendar day before now in loc.
func Yesterday(now time.Time, loc *time.Location) (time.Time, time.Time) {
	return DayWindowUTC(now.In(loc).AddDate(0, 0, -1), loc)
}

// EndOfDayUTC returns the exclusive upper bound of t's calendar day in loc,
// i.e. the first instant of the next local day, as UTC. A price observation
// strictly before this instant counts as known "as of" that date.
func EndOfDayUTC(t time.Time, loc *time.Location) time.Time {
	_, end := DayWindowUTC(t, loc)
	return end
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DateIn(a, loc).Equal(DateIn(b, loc))
}
