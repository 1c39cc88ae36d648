package billing

import "time"

// Clock supplies the current time. Injected so period math is testable
// at month boundaries; production wiring uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used in production.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Period is one billing window: [Start, End). Periods are calendar
// months in UTC regardless of when the user signed up or upgraded, so
// every counter row for a month shares the same start key.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// CurrentPeriod returns the calendar-month period containing the clock's
// current time.
func CurrentPeriod(clock Clock) Period {
	return PeriodAt(clock.Now())
}

// PeriodAt returns the calendar-month period containing t. The input is
// normalized to UTC first so a local-time caller near midnight cannot
// land in the wrong month.
func PeriodAt(t time.Time) Period {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}
