package schedule

import "time"

// DayKeyFormat is the calendar-date key used in daily allocation maps.
const DayKeyFormat = "2006-01-02"

// HolidayChecker reports whether a calendar day is a holiday. A nil checker
// means weekends are the only non-workdays.
type HolidayChecker interface {
	IsHoliday(day time.Time) bool
}

// HolidayList is a HolidayChecker backed by a fixed set of dates.
type HolidayList map[string]struct{}

// NewHolidayList builds a checker from YYYY-MM-DD date strings. Unparseable
// entries are ignored.
func NewHolidayList(dates []string) HolidayList {
	l := make(HolidayList, len(dates))
	for _, d := range dates {
		if _, err := time.Parse(DayKeyFormat, d); err != nil {
			continue
		}
		l[d] = struct{}{}
	}
	return l
}

func (l HolidayList) IsHoliday(day time.Time) bool {
	_, ok := l[DayKey(day)]
	return ok
}

// DayKey formats a timestamp as its calendar-date key.
func DayKey(t time.Time) string {
	return t.Format(DayKeyFormat)
}

// ParseDayKey parses a calendar-date key back to midnight UTC.
func ParseDayKey(key string) (time.Time, error) {
	return time.Parse(DayKeyFormat, key)
}

// StartOfDay truncates a timestamp to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// IsWorkday reports whether day is neither a weekend day nor a holiday.
func IsWorkday(day time.Time, holidays HolidayChecker) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if holidays != nil && holidays.IsHoliday(day) {
		return false
	}
	return true
}

// CountWorkdays counts workdays in [from, to] inclusive.
func CountWorkdays(from, to time.Time, holidays HolidayChecker) int {
	from = StartOfDay(from)
	to = StartOfDay(to)
	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsWorkday(d, holidays) {
			count++
		}
	}
	return count
}
