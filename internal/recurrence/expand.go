package recurrence

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxOccurrences bounds a single expansion.
const DefaultMaxOccurrences = 5000

// Expander turns a start instant, an end bound and a frequency into the
// ordered series of occurrence starts. Both instants are expected in the
// task's local zone; stepping happens on the wall clock of that zone.
type Expander struct {
	MaxCount int
	Log      logrus.FieldLogger
}

// Expand returns every candidate start from start up to and including end.
// When the series hits MaxCount it is truncated, a warning is logged and
// the second result is true.
func (e Expander) Expand(start, end time.Time, freq Frequency) ([]time.Time, bool) {
	limit := e.MaxCount
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}
	series, capped := Series(start, end, freq, limit)
	if capped && e.Log != nil {
		e.Log.WithFields(logrus.Fields{
			"frequency": freq.String(),
			"cap":       limit,
			"start":     start.Format(time.RFC3339),
			"end":       end.Format(time.RFC3339),
		}).Warn("occurrence series truncated at cap")
	}
	return series, capped
}

// Series is the pure form of Expand. The second result reports whether
// maxCount cut the series short.
func Series(start, end time.Time, freq Frequency, maxCount int) ([]time.Time, bool) {
	if !freq.IsRecurring() || maxCount <= 0 {
		return nil, false
	}

	var out []time.Time
	for k := 0; k < maxCount; k++ {
		candidate := Step(start, k, freq)
		if candidate.After(end) {
			return out, false
		}
		out = append(out, candidate)
	}
	return out, !Step(start, maxCount, freq).After(end)
}

// Step returns occurrence k of the series anchored at start. Each
// occurrence is computed from the anchor, never from its predecessor, so
// month-end clamping does not drift (Jan 31 -> Feb 28 -> Mar 31).
func Step(start time.Time, k int, freq Frequency) time.Time {
	switch freq {
	case FrequencyDaily:
		return start.AddDate(0, 0, k)
	case FrequencyWeekly:
		return start.AddDate(0, 0, 7*k)
	case FrequencyMonthly:
		return addMonthsClamped(start, k)
	case FrequencyQuarterly:
		return addMonthsClamped(start, 3*k)
	case FrequencyYearly:
		return addMonthsClamped(start, 12*k)
	default:
		return start
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(first.Month(), first.Year()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(month time.Month, year int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PreservationCutoff returns the last instant of the calendar month that
// contains now, as seen in loc. Occurrences starting at or before it are
// never removed by synchronization.
func PreservationCutoff(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	year, month, _ := now.In(loc).Date()
	return time.Date(year, month+1, 1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)
}
