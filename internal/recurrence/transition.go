package recurrence

import "time"

// DefaultDateTolerance absorbs clock and serialization jitter when deciding
// whether a task's dates were edited.
const DefaultDateTolerance = 60 * time.Second

// State is the recurrence state of a task.
type State int

const (
	StateNonRecurring State = iota
	StateRecurring
)

func (s State) String() string {
	if s == StateRecurring {
		return "RECURRING"
	}
	return "NON_RECURRING"
}

// Snapshot holds the recurrence-relevant fields of a task at one point in time.
type Snapshot struct {
	Rule        string
	IsRecurring bool
	StartDate   time.Time
	DueDate     time.Time
	EndDate     *time.Time
}

func (s Snapshot) Frequency() Frequency {
	return Parse(s.Rule)
}

// State is RECURRING only when the rule parses and an end date is set.
func (s Snapshot) State() State {
	if s.Frequency().IsRecurring() && s.EndDate != nil {
		return StateRecurring
	}
	return StateNonRecurring
}

// Decision is the outcome of comparing two snapshots.
type Decision struct {
	RuleChanged            bool
	RecurringStatusChanged bool
	DatesChanged           bool
	WillBeRecurring        bool
	NeedsRegeneration      bool
	// Collapse marks the RECURRING -> NON_RECURRING transition, which
	// replaces the whole series with a single occurrence.
	Collapse bool
}

// Decide evaluates whether an update from before to after requires the
// occurrence series to be regenerated.
func Decide(before, after Snapshot, tolerance time.Duration) Decision {
	if tolerance <= 0 {
		tolerance = DefaultDateTolerance
	}

	d := Decision{
		RuleChanged:            Normalize(before.Rule) != Normalize(after.Rule),
		RecurringStatusChanged: before.IsRecurring != after.IsRecurring,
		WillBeRecurring:        after.State() == StateRecurring,
	}
	if d.WillBeRecurring {
		d.DatesChanged = exceeds(before.StartDate, after.StartDate, tolerance) ||
			exceeds(before.DueDate, after.DueDate, tolerance) ||
			!sameInstant(before.EndDate, after.EndDate)
	}
	d.NeedsRegeneration = d.RuleChanged || d.RecurringStatusChanged || (d.WillBeRecurring && d.DatesChanged)
	d.Collapse = before.State() == StateRecurring && after.State() == StateNonRecurring
	return d
}

func exceeds(a, b time.Time, tolerance time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}

func sameInstant(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return a.Equal(*b)
	}
}
