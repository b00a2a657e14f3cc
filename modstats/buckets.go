package modstats

import (
	"fmt"
	"sort"
	"time"
)

// ResolveZone validates a caller-supplied IANA time zone identifier. An
// unrecognized zone is a caller error; it is never silently defaulted to UTC,
// since bucketing in the wrong zone shifts every day boundary in a report.
func ResolveZone(zone string) (*time.Location, error) {
	if zone == "" {
		return nil, fmt.Errorf("time zone identifier is required")
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unrecognized time zone %q: %w", zone, err)
	}
	return loc, nil
}

// LocalDay maps an instant to its zone-local calendar date. Admin traffic is
// reviewed in local time, so a UTC timestamp is reassigned to the zone-local
// day before any daily bucketing. Every daily breakdown in this package goes
// through this one function so day-boundary semantics stay identical across
// reports.
func LocalDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func sortedDays[V any](m map[string]V) []string {
	days := make([]string, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}
