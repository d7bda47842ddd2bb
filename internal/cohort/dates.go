package cohort

import (
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/guregu/null.v3"
)

// DateLayout is the normalized form of exported dates.
const DateLayout = "2006-01-02"

// layouts dateparse does not recognise on its own
var fallbackLayouts = []string{
	"02-Jan-2006",
	"02-Jan-2006 15:04:05",
	"2006/01/02",
}

// ParseDateTime parses a raw datetime column and keeps its wall clock, moved to
// UTC so it compares directly with the midnight values from YearsBefore. Null,
// empty or unparsable input yields an invalid null.Time rather than an error.
func ParseDateTime(raw null.String) null.Time {
	if !raw.Valid || raw.String == "" {
		return null.Time{}
	}
	if t, err := dateparse.ParseAny(raw.String); err == nil {
		return null.TimeFrom(wallClock(t))
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return null.TimeFrom(wallClock(t))
		}
	}
	return null.Time{}
}

// ParseDate is ParseDateTime reduced to the calendar date.
func ParseDate(raw null.String) null.Time {
	t := ParseDateTime(raw)
	if !t.Valid {
		return t
	}
	return null.TimeFrom(DateOnly(t.Time))
}

// DateOnly drops the clock part of t, keeping the calendar date of t's own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AgeOn returns the number of whole years between dob and today. The year
// difference is reduced by one while today's (month, day) precedes the birthday.
func AgeOn(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// AgeOf is AgeOn for a nullable birth date; a null birth date gives a null age.
func AgeOf(dob null.Time, today time.Time) null.Int {
	if !dob.Valid {
		return null.Int{}
	}
	return null.IntFrom(int64(AgeOn(dob.Time, today)))
}

// YearsBefore returns the same month and day n years before t. A 29 February
// that does not exist in the target year becomes 28 February.
func YearsBefore(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	y -= n
	if last := daysIn(y, m); d > last {
		d = last
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
