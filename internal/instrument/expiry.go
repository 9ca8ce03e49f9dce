package instrument

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"optionscore/internal/config"
)

var weekdayByName = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ExpandSchedule expands the five cadences in cfg into a deduplicated,
// ascending-sorted list of future expiry instants relative to asOf
// (spec.md §4.5). Past expiries are dropped.
func ExpandSchedule(cfg config.ExpirySchedule, asOf time.Time) ([]time.Time, error) {
	var all []time.Time

	type kind int
	const (
		kindDaily kind = iota
		kindWeekly
		kindMonthCadence
	)

	add := func(cadence config.ExpiryCadenceConfig, k kind, stepMonths int) error {
		if !cadence.Enabled || cadence.Count <= 0 {
			return nil
		}
		hh, mm, err := parseTimeOfDay(cadence.TimeOfDay)
		if err != nil {
			return err
		}
		var times []time.Time
		switch k {
		case kindDaily:
			times, err = expandDaily(asOf, hh, mm, cadence.Count)
		case kindWeekly:
			times, err = expandWeekly(asOf, cadence.DayOfWeek, hh, mm, cadence.Count)
		case kindMonthCadence:
			times, err = expandMonthCadence(asOf, cadence.DayType, hh, mm, cadence.Count, stepMonths)
		}
		if err != nil {
			return err
		}
		all = append(all, times...)
		return nil
	}

	if err := add(cfg.Daily, kindDaily, 0); err != nil {
		return nil, err
	}
	if err := add(cfg.Weekly, kindWeekly, 0); err != nil {
		return nil, err
	}
	if err := add(cfg.Monthly, kindMonthCadence, 1); err != nil {
		return nil, err
	}
	if err := add(cfg.Quarterly, kindMonthCadence, 3); err != nil {
		return nil, err
	}
	if err := add(cfg.Yearly, kindMonthCadence, 12); err != nil {
		return nil, err
	}

	return dedupSortFuture(all, asOf), nil
}

func parseTimeOfDay(s string) (hh, mm int, err error) {
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time_of_day %q, want HH:MM", s)
	}
	hh, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time_of_day %q: %w", s, err)
	}
	mm, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time_of_day %q: %w", s, err)
	}
	return hh, mm, nil
}

func dateAt(t time.Time, hh, mm int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hh, mm, 0, 0, time.UTC)
}

func expandDaily(asOf time.Time, hh, mm, count int) ([]time.Time, error) {
	var out []time.Time
	day := asOf.UTC()
	for len(out) < count {
		candidate := dateAt(day, hh, mm)
		if candidate.After(asOf) {
			out = append(out, candidate)
		}
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

func expandWeekly(asOf time.Time, dayOfWeek string, hh, mm, count int) ([]time.Time, error) {
	wd, ok := weekdayByName[strings.ToLower(dayOfWeek)]
	if !ok {
		return nil, fmt.Errorf("unknown day_of_week %q", dayOfWeek)
	}
	day := asOf.UTC()
	var out []time.Time
	for len(out) < count {
		if day.Weekday() == wd {
			candidate := dateAt(day, hh, mm)
			if candidate.After(asOf) {
				out = append(out, candidate)
				day = day.AddDate(0, 0, 7)
				continue
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

// expandMonthCadence resolves day_type within each of the next
// cadence months stepped by stepMonths (1=monthly, 3=quarterly,
// 12=yearly), starting from asOf's month.
func expandMonthCadence(asOf time.Time, dayType string, hh, mm, count, stepMonths int) ([]time.Time, error) {
	var out []time.Time
	cursor := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	for len(out) < count {
		day, err := resolveDayType(cursor.Year(), cursor.Month(), dayType)
		if err != nil {
			return nil, err
		}
		candidate := dateAt(day, hh, mm)
		if candidate.After(asOf) {
			out = append(out, candidate)
		}
		cursor = cursor.AddDate(0, stepMonths, 0)
	}
	return out, nil
}

// resolveDayType resolves day_type within (year, month) per spec.md
// §4.5: last_friday, third_friday, first_day, last_day.
func resolveDayType(year int, month time.Month, dayType string) (time.Time, error) {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lastOfMonth := firstOfMonth.AddDate(0, 1, -1)

	switch dayType {
	case "first_day":
		return firstOfMonth, nil
	case "last_day":
		return lastOfMonth, nil
	case "last_friday":
		d := lastOfMonth
		for d.Weekday() != time.Friday {
			d = d.AddDate(0, 0, -1)
		}
		return d, nil
	case "third_friday":
		fridays := 0
		for d := firstOfMonth; d.Month() == month; d = d.AddDate(0, 0, 1) {
			if d.Weekday() == time.Friday {
				fridays++
				if fridays == 3 {
					return d, nil
				}
			}
		}
		return time.Time{}, fmt.Errorf("month %s %d has fewer than 3 fridays", month, year)
	default:
		return time.Time{}, fmt.Errorf("unknown day_type %q", dayType)
	}
}

func dedupSortFuture(times []time.Time, asOf time.Time) []time.Time {
	seen := make(map[int64]bool, len(times))
	var out []time.Time
	for _, t := range times {
		if !t.After(asOf) {
			continue
		}
		key := t.Unix()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
