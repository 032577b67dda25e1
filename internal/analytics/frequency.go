package analytics

import (
	"fmt"
	"sort"
	"time"
)

const day = 24 * time.Hour

// Frequency is the sampling cadence of a series. Exactly one of Step, Months
// or Business describes how to advance from one timestamp to the next.
type Frequency struct {
	Code     string        `json:"code"`
	Step     time.Duration `json:"step,omitempty"`
	Months   int           `json:"months,omitempty"`
	Business bool          `json:"business,omitempty"`
}

// Base cadences produced by the median fallback.
var (
	Minutely      = Frequency{Code: "min", Step: time.Minute}
	Hourly        = Frequency{Code: "H", Step: time.Hour}
	Daily         = Frequency{Code: "D", Step: day}
	Weekly        = Frequency{Code: "W", Step: 7 * day}
	Monthly       = Frequency{Code: "M", Months: 1}
	BusinessDaily = Frequency{Code: "B", Business: true}
)

// Median-gap bucket ceilings, in seconds. Buckets are upper-inclusive.
const (
	minuteCeiling  = 60
	hourlyCeiling  = 3600
	dailyCeiling   = 86400
	weeklyCeiling  = 604800
	monthlyCeiling = 2592000
)

func (f Frequency) String() string {
	return f.Code
}

// IsZero reports whether no cadence has been assigned.
func (f Frequency) IsZero() bool {
	return f.Code == "" && f.Step == 0 && f.Months == 0 && !f.Business
}

// Next returns the timestamp one step after t.
func (f Frequency) Next(t time.Time) time.Time {
	switch {
	case f.Business:
		return nextBusinessDay(t)
	case f.Months > 0:
		return addMonths(t, f.Months)
	case f.Step > 0 && f.Step%day == 0:
		return t.AddDate(0, 0, int(f.Step/day))
	case f.Step > 0:
		return t.Add(f.Step)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Dates returns horizon timestamps, the first one step after last.
func (f Frequency) Dates(last time.Time, horizon int) []time.Time {
	if horizon <= 0 {
		return nil
	}
	dates := make([]time.Time, horizon)
	t := last
	for i := range dates {
		t = f.Next(t)
		dates[i] = t
	}
	return dates
}

// InferFrequency derives a cadence from an ordered index. It prefers an
// exactly regular spacing, then a consistent calendar step (days across DST,
// months, business days), and finally buckets the median gap.
func InferFrequency(times []time.Time) Frequency {
	if f, ok := regularFrequency(times); ok {
		return f
	}
	if f, ok := calendarFrequency(times); ok {
		return f
	}
	return medianFrequency(times)
}

func regularFrequency(times []time.Time) (Frequency, bool) {
	if len(times) < 3 {
		return Frequency{}, false
	}
	step := times[1].Sub(times[0])
	if step <= 0 {
		return Frequency{}, false
	}
	for i := 2; i < len(times); i++ {
		if times[i].Sub(times[i-1]) != step {
			return Frequency{}, false
		}
	}
	return fixedFrequency(step), true
}

func fixedFrequency(step time.Duration) Frequency {
	units := []struct {
		unit time.Duration
		code string
	}{
		{7 * day, "W"},
		{day, "D"},
		{time.Hour, "H"},
		{time.Minute, "min"},
		{time.Second, "S"},
	}
	for _, u := range units {
		if step%u.unit == 0 {
			return Frequency{Code: multiple(int(step/u.unit), u.code), Step: step}
		}
	}
	return Frequency{Code: step.String(), Step: step}
}

func calendarFrequency(times []time.Time) (Frequency, bool) {
	if len(times) < 3 {
		return Frequency{}, false
	}
	if days, ok := calendarDays(times); ok {
		code := "D"
		if days%7 == 0 {
			code = multiple(days/7, "W")
		} else {
			code = multiple(days, "D")
		}
		return Frequency{Code: code, Step: time.Duration(days) * day}, true
	}
	if months, ok := calendarMonths(times); ok {
		return Frequency{Code: multiple(months, "M"), Months: months}, true
	}
	if isBusinessDaily(times) {
		return BusinessDaily, true
	}
	return Frequency{}, false
}

// calendarDays accepts steps that are a whole number of wall-clock days,
// which differ in absolute duration across DST changes.
func calendarDays(times []time.Time) (int, bool) {
	y0, m0, d0 := times[0].Date()
	y1, m1, d1 := times[1].Date()
	first := time.Date(y0, m0, d0, 0, 0, 0, 0, time.UTC)
	second := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	days := int(second.Sub(first) / day)
	if days <= 0 {
		return 0, false
	}
	for i := 1; i < len(times); i++ {
		if !times[i-1].AddDate(0, 0, days).Equal(times[i]) {
			return 0, false
		}
	}
	return days, true
}

func calendarMonths(times []time.Time) (int, bool) {
	months := monthsBetween(times[0], times[1])
	if months <= 0 {
		return 0, false
	}
	for i := 1; i < len(times); i++ {
		if !addMonths(times[i-1], months).Equal(times[i]) {
			return 0, false
		}
	}
	return months, true
}

func isBusinessDaily(times []time.Time) bool {
	weekendJump := false
	for i, t := range times {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
		if i == 0 {
			continue
		}
		if !nextBusinessDay(times[i-1]).Equal(t) {
			return false
		}
		if times[i-1].Weekday() == time.Friday {
			weekendJump = true
		}
	}
	return weekendJump
}

func medianFrequency(times []time.Time) Frequency {
	if len(times) < 2 {
		return Daily
	}
	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Seconds())
	}
	sort.Float64s(gaps)
	mid := len(gaps) / 2
	median := gaps[mid]
	if len(gaps)%2 == 0 {
		median = (gaps[mid-1] + gaps[mid]) / 2
	}

	switch {
	case median <= minuteCeiling:
		return Minutely
	case median <= hourlyCeiling:
		return Hourly
	case median <= dailyCeiling:
		return Daily
	case median <= weeklyCeiling:
		return Weekly
	case median <= monthlyCeiling:
		return Monthly
	default:
		return Daily
	}
}

func multiple(n int, code string) string {
	if n == 1 {
		return code
	}
	return fmt.Sprintf("%d%s", n, code)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// addMonths keeps month-end anchoring: Jan 31 + 1 month is Feb 28/29, and a
// month-end timestamp stays on month ends.
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	target := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	last := daysInMonth(target)
	if d > last || d == daysInMonth(t) {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func nextBusinessDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
