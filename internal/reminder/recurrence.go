package reminder

import "time"

// NextOccurrence steps prev forward by one recurrence interval, preserving
// hour and minute. It returns ok=false for RecurNone and for RecurCustom
// (reserved pattern, accepted by validation but never interpreted here).
//
// Monthly/yearly stepping uses AddDate, so end-of-month overflow normalizes
// the Go way (Jan 31 + 1 month = Mar 2/3).
func NextOccurrence(prev time.Time, p Pattern) (time.Time, bool) {
	switch p {
	case RecurDaily:
		return prev.AddDate(0, 0, 1), true
	case RecurWeekly:
		return prev.AddDate(0, 0, 7), true
	case RecurMonthly:
		return prev.AddDate(0, 1, 0), true
	case RecurYearly:
		return prev.AddDate(1, 0, 0), true
	case RecurWorkdays:
		t := prev.AddDate(0, 0, 1)
		for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	case RecurWeekends:
		t := prev.AddDate(0, 0, 1)
		for t.Weekday() != time.Saturday && t.Weekday() != time.Sunday {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	}
	return time.Time{}, false
}
