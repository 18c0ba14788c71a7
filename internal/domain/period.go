package domain

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// DaysPerWeek is the fixed length of a weekly rollup period.
const DaysPerWeek = 7

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// WeekStart returns the Monday of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	d := Date(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeekEnd returns the Sunday closing the week that starts on weekStart.
func WeekEnd(weekStart time.Time) time.Time {
	return Date(weekStart).AddDate(0, 0, DaysPerWeek-1)
}

// WeekLabel renders "Week 1, 2024" using the ISO week of weekStart.
func WeekLabel(weekStart time.Time) string {
	year, week := weekStart.ISOWeek()
	return fmt.Sprintf("Week %d, %d", week, year)
}

// MonthStart returns the first day of the given month.
func MonthStart(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of the given month.
func MonthEnd(year, month int) time.Time {
	return MonthStart(year, month).AddDate(0, 1, -1)
}

// DaysInMonth returns the number of calendar days in the month.
func DaysInMonth(year, month int) int {
	return MonthEnd(year, month).Day()
}

// MonthLabel renders "January 2024".
func MonthLabel(year, month int) string {
	return MonthStart(year, month).Format("January 2006")
}

// Quarter returns 1..4 for a month number.
func Quarter(month int) int {
	return (month-1)/3 + 1
}

// ValidMonth reports whether month is within 1..12.
func ValidMonth(month int) bool { return month >= 1 && month <= 12 }

// PreviousYearMonth returns the calendar month one year before.
func PreviousYearMonth(year, month int) (int, int) { return year - 1, month }

// WeekStartsBetween lists every week start whose week intersects [from, to].
func WeekStartsBetween(from, to time.Time) []time.Time {
	var out []time.Time
	end := Date(to)
	for ws := WeekStart(from); !ws.After(end); ws = ws.AddDate(0, 0, DaysPerWeek) {
		out = append(out, ws)
	}
	return out
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month) }

// MonthsBetween lists every month that intersects [from, to].
func MonthsBetween(from, to time.Time) []YearMonth {
	var out []YearMonth
	end := Date(to)
	for ms := MonthStart(from.Year(), int(from.Month())); !ms.After(end); ms = ms.AddDate(0, 1, 0) {
		out = append(out, YearMonth{Year: ms.Year(), Month: int(ms.Month())})
	}
	return out
}

// PeriodKind distinguishes weekly and monthly periods.
type PeriodKind string

const (
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
)

// Period is a closed date range used when asking for plans and targets.
type Period struct {
	Kind  PeriodKind `json:"kind"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
