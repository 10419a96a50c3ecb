// Package markethours answers US equity session questions (NYSE regular
// hours, weekends, holidays, early closes) for status reporting.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// ET is US Eastern time, with daylight saving.
var ET = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// Regular session in ET.
const (
	OpenHour         = 9
	OpenMinute       = 30
	CloseHour        = 16
	CloseMinute      = 0
	EarlyCloseHour   = 13
	EarlyCloseMinute = 0
)

// IsMarketOpen returns true if t falls within NYSE regular hours
// (9:30 AM – 4:00 PM ET, Mon–Fri, excluding holidays, 1:00 PM on early closes).
func IsMarketOpen(t time.Time) bool {
	et := t.In(ET)
	if !IsTradingDay(et) {
		return false
	}
	return !et.Before(sessionOpen(et)) && et.Before(TodayClose(et))
}

// IsWeekday returns true if t is Mon–Fri in ET.
func IsWeekday(t time.Time) bool {
	wd := t.In(ET).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	et := t.In(ET)
	return IsWeekday(et) && !IsHoliday(et)
}

func sessionOpen(et time.Time) time.Time {
	return time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, ET)
}

// NextOpen returns the next regular session open. If t is before today's
// open on a trading day, returns today's open.
func NextOpen(t time.Time) time.Time {
	et := t.In(ET)
	if open := sessionOpen(et); et.Before(open) && IsTradingDay(et) {
		return open
	}

	d := time.Date(et.Year(), et.Month(), et.Day()+1, 12, 0, 0, 0, ET)
	for i := 0; i < 10; i++ { // weekends plus holiday runs
		if IsTradingDay(d) {
			return sessionOpen(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return sessionOpen(d)
}

// TodayClose returns the close for t's ET date, honouring early closes.
func TodayClose(t time.Time) time.Time {
	et := t.In(ET)
	if IsEarlyClose(et) {
		return time.Date(et.Year(), et.Month(), et.Day(), EarlyCloseHour, EarlyCloseMinute, 0, 0, ET)
	}
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, ET)
}

// TimeUntilClose returns the duration until today's close, or 0 after it.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns the duration until the next open.
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t)
}

// Status is the JSON form reported to stream clients and /health.
type Status struct {
	Open     bool       `json:"open"`
	Message  string     `json:"message"`
	NextOpen time.Time  `json:"nextOpen"`
	Close    *time.Time `json:"close,omitempty"`
}

// StatusAt summarises the session state at t.
func StatusAt(t time.Time) Status {
	s := Status{Open: IsMarketOpen(t), Message: StatusString(t), NextOpen: NextOpen(t)}
	if s.Open {
		cl := TodayClose(t)
		s.Close = &cl
	}
	return s
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	return fmt.Sprintf("Market Closed, opens %s %s ET (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
