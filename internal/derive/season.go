package derive

import (
	"math"
	"time"
)

// seasonFlags derives the mutually exclusive season dummies from the
// calendar month. Winter (Dec-Feb) is the unflagged baseline.
func seasonFlags(t time.Time) (spring, summer, fall int) {
	switch t.Month() {
	case time.March, time.April, time.May:
		return 1, 0, 0
	case time.June, time.July, time.August:
		return 0, 1, 0
	case time.September, time.October, time.November:
		return 0, 0, 1
	default:
		return 0, 0, 0
	}
}

// weekNumber maps a calendar date to the global week index:
// floor((date - origin).days / 7). The origin is a single fixed
// reference for the whole run, so the same date yields the same index
// for every retailer.
func weekNumber(t, origin time.Time) int {
	days := t.Sub(origin).Hours() / 24
	return int(math.Floor(days / 7))
}
