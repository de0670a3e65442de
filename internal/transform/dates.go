package transform

import (
	"math"
	"strings"
	"time"
)

// SpreadsheetEpoch is day zero of legacy spreadsheet date serials. It absorbs
// the phantom 1900-02-29, so serial 1 is 1899-12-31 and 45000 is 2023-03-15.
var SpreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Text layouts tried in order after the serial interpretation fails.
var dateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"1/2/2006",
}

const secondsPerDay = 24 * 60 * 60

var (
	minDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// ParseMixedDate resolves a raw booking_date cell to a calendar date. The
// order is fixed: nil, date values, day serials, then the text layouts. It
// returns nil when nothing matches.
func ParseMixedDate(v any) *time.Time {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(x) {
			return nil
		}
	case time.Time:
		d := dateOf(x)
		return &d
	case *time.Time:
		if x == nil {
			return nil
		}
		d := dateOf(*x)
		return &d
	}

	if f, ok := numberOf(v); ok {
		if d, ok := fromSerial(f); ok {
			return &d
		}
	}

	s, ok := textOf(v)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// SerialFromDate returns the day serial of d's calendar date.
func SerialFromDate(d time.Time) int64 {
	return (dateOf(d).Unix() - SpreadsheetEpoch.Unix()) / secondsPerDay
}

// fromSerial takes the integer part of f as a day offset from the epoch.
// Results outside years 1..9999 are rejected.
func fromSerial(f float64) (time.Time, bool) {
	days := math.Trunc(f)
	if days < float64(SerialFromDate(minDate)) || days > float64(SerialFromDate(maxDate)) {
		return time.Time{}, false
	}
	return SpreadsheetEpoch.AddDate(0, 0, int(days)), true
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
