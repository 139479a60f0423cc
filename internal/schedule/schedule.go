// internal/schedule/schedule.go
package schedule

import (
	"fmt"
	"sort"
	"time"

	custom_errors "github-streak-manager/internal/errors"
	"github-streak-manager/internal/model"
)

const (
	// MaxDates caps how many dates a single bulk request may touch.
	MaxDates = 30

	DateLayout = "2006-01-02"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On applies the clock to a calendar date, keeping the date's location.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, date.Location())
}

// ParseFrequency validates a frequency selector.
func ParseFrequency(s string) (model.Frequency, error) {
	switch f := model.Frequency(s); f {
	case model.FrequencyDaily, model.FrequencyWeekdays, model.FrequencyWeekends, model.FrequencyWeekly:
		return f, nil
	}
	return "", &custom_errors.ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown value %q", s)}
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight in loc.
func ParseDate(field, s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, &custom_errors.ValidationError{Field: field, Reason: "is required"}
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, &custom_errors.ValidationError{Field: field, Reason: "must be in YYYY-MM-DD format"}
	}
	return t, nil
}

// ParseClock parses a 24h HH:MM time of day.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, &custom_errors.ValidationError{Field: "time", Reason: fmt.Sprintf("%q must be in HH:MM format", s)}
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Matches reports whether date belongs to a range starting at start under freq.
func Matches(freq model.Frequency, start, date time.Time) bool {
	switch freq {
	case model.FrequencyDaily:
		return true
	case model.FrequencyWeekdays:
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	case model.FrequencyWeekends:
		wd := date.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	case model.FrequencyWeekly:
		return date.Weekday() == start.Weekday()
	}
	return false
}

// Expand returns the dates from start to end inclusive that satisfy freq, in ascending order.
func Expand(start, end time.Time, freq model.Frequency) ([]time.Time, error) {
	var dates []time.Time
	err := walk(start, end, freq, func(d time.Time) {
		dates = append(dates, d)
	})
	return dates, err
}

// Plan expands the range and rejects it when more than MaxDates dates qualify.
// Dates past the cap are counted but never collected.
func Plan(start, end time.Time, freq model.Frequency) ([]time.Time, error) {
	var (
		dates []time.Time
		count int
	)
	err := walk(start, end, freq, func(d time.Time) {
		count++
		if count <= MaxDates {
			dates = append(dates, d)
		}
	})
	if err != nil {
		return nil, err
	}
	if count > MaxDates {
		return nil, &custom_errors.ErrTooManyCommits{Count: count, Max: MaxDates}
	}
	return dates, nil
}

func walk(start, end time.Time, freq model.Frequency, fn func(time.Time)) error {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return &custom_errors.ValidationError{Field: "endDate", Reason: "must not be before startDate"}
	}
	// AddDate keeps midnight across DST changes, unlike adding 24h.
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if Matches(freq, start, d) {
			fn(d)
		}
	}
	return nil
}

// Partition splits timestamps into those strictly before now and the rest.
// Both halves are sorted oldest first so commits chain in causal order.
func Partition(times []time.Time, now time.Time) (past, future []time.Time) {
	for _, t := range times {
		if t.Before(now) {
			past = append(past, t)
		} else {
			future = append(future, t)
		}
	}
	sort.Slice(past, func(i, j int) bool { return past[i].Before(past[j]) })
	sort.Slice(future, func(i, j int) bool { return future[i].Before(future[j]) })
	return past, future
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
