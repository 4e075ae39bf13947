// Package schedule wraps cron-expression handling so the rest of the system
// treats a schedule as an opaque "does this spec match this point in time"
// predicate.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether spec is a parsable schedule.
func Validate(spec string) error {
	_, err := parser.Parse(spec)
	return err
}

// Matches reports whether spec fires within the calendar minute containing
// now. Matching is minute-resolution: the scheduler's recurrent tick visits
// each minute once.
func Matches(spec string, now time.Time) bool {
	sched, err := parser.Parse(spec)
	if err != nil {
		return false
	}
	// cron.Next is strictly-after, so step back below the top of the minute.
	from := now.Truncate(time.Minute).Add(-time.Second)
	next := sched.Next(from)
	return !next.IsZero() && !next.After(now)
}

// Next returns the first firing time of spec after from.
func Next(spec string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
