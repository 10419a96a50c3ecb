package markethours

import "time"

type sessionDay struct {
	month time.Month
	day   int
}

// NYSE full-day closures for 2026.
var nyseHolidays2026 = []sessionDay{
	{time.January, 1},   // New Year's Day
	{time.January, 19},  // Martin Luther King Jr. Day
	{time.February, 16}, // Washington's Birthday
	{time.April, 3},     // Good Friday
	{time.May, 25},      // Memorial Day
	{time.June, 19},     // Juneteenth
	{time.July, 3},      // Independence Day (observed)
	{time.September, 7}, // Labor Day
	{time.November, 26}, // Thanksgiving Day
	{time.December, 25}, // Christmas Day
}

// Sessions that close at 1:00 PM ET.
var nyseEarlyCloses2026 = []sessionDay{
	{time.November, 27}, // day after Thanksgiving
	{time.December, 24}, // Christmas Eve
}

var (
	holidaySet    = buildSet(nyseHolidays2026)
	earlyCloseSet = buildSet(nyseEarlyCloses2026)
)

func buildSet(days []sessionDay) map[string]bool {
	set := make(map[string]bool, len(days))
	for _, d := range days {
		set[dateKey(2026, d.month, d.day)] = true
	}
	return set
}

// IsHoliday returns true if the date (in ET) is an NYSE holiday.
func IsHoliday(t time.Time) bool {
	et := t.In(ET)
	return holidaySet[dateKey(et.Year(), et.Month(), et.Day())]
}

// IsEarlyClose returns true if the date (in ET) is a 1:00 PM close.
func IsEarlyClose(t time.Time) bool {
	et := t.In(ET)
	return earlyCloseSet[dateKey(et.Year(), et.Month(), et.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
