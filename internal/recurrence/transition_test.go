package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func recurringSnapshot() Snapshot {
	end := date(2026, 12, 31)
	return Snapshot{
		Rule:        "MONTHLY",
		IsRecurring: true,
		StartDate:   date(2026, 1, 5),
		DueDate:     date(2026, 1, 6),
		EndDate:     &end,
	}
}

func TestSnapshot_State(t *testing.T) {
	s := recurringSnapshot()
	assert.Equal(t, StateRecurring, s.State())

	s.EndDate = nil
	assert.Equal(t, StateNonRecurring, s.State())

	s = recurringSnapshot()
	s.Rule = "FREQ=WEEKLY;INTERVAL=2"
	assert.Equal(t, StateNonRecurring, s.State())
}

func TestDecide_NoChange(t *testing.T) {
	d := Decide(recurringSnapshot(), recurringSnapshot(), 0)
	assert.False(t, d.NeedsRegeneration)
	assert.False(t, d.Collapse)
	assert.True(t, d.WillBeRecurring)
}

func TestDecide_EquivalentRuleSpellings(t *testing.T) {
	before := recurringSnapshot()
	before.Rule = "QUARTERLY"
	after := recurringSnapshot()
	after.Rule = "FREQ=MONTHLY;INTERVAL=3"

	d := Decide(before, after, 0)
	assert.False(t, d.RuleChanged)
	assert.False(t, d.NeedsRegeneration)
}

func TestDecide_RuleChange(t *testing.T) {
	after := recurringSnapshot()
	after.Rule = "WEEKLY"

	d := Decide(recurringSnapshot(), after, 0)
	assert.True(t, d.RuleChanged)
	assert.True(t, d.NeedsRegeneration)
	assert.False(t, d.Collapse)
}

func TestDecide_DateJitterWithinTolerance(t *testing.T) {
	after := recurringSnapshot()
	after.StartDate = after.StartDate.Add(59 * time.Second)
	after.DueDate = after.DueDate.Add(-60 * time.Second)

	d := Decide(recurringSnapshot(), after, DefaultDateTolerance)
	assert.False(t, d.DatesChanged)
	assert.False(t, d.NeedsRegeneration)
}

func TestDecide_DateChangeBeyondTolerance(t *testing.T) {
	after := recurringSnapshot()
	after.DueDate = after.DueDate.Add(61 * time.Second)

	d := Decide(recurringSnapshot(), after, DefaultDateTolerance)
	assert.True(t, d.DatesChanged)
	assert.True(t, d.NeedsRegeneration)
}

func TestDecide_EndDateChange(t *testing.T) {
	after := recurringSnapshot()
	later := date(2027, 6, 30)
	after.EndDate = &later

	d := Decide(recurringSnapshot(), after, 0)
	assert.True(t, d.DatesChanged)
	assert.True(t, d.NeedsRegeneration)
}

func TestDecide_DatesIgnoredWhenNotRecurring(t *testing.T) {
	before := Snapshot{Rule: "", StartDate: date(2026, 1, 1), DueDate: date(2026, 1, 2)}
	after := before
	after.StartDate = date(2026, 3, 1)

	d := Decide(before, after, 0)
	assert.False(t, d.DatesChanged)
	assert.False(t, d.NeedsRegeneration)
}

func TestDecide_Collapse(t *testing.T) {
	after := recurringSnapshot()
	after.Rule = ""
	after.IsRecurring = false

	d := Decide(recurringSnapshot(), after, 0)
	assert.True(t, d.Collapse)
	assert.True(t, d.NeedsRegeneration)
	assert.False(t, d.WillBeRecurring)
}

func TestDecide_BecomingRecurring(t *testing.T) {
	before := Snapshot{StartDate: date(2026, 1, 5), DueDate: date(2026, 1, 6)}

	d := Decide(before, recurringSnapshot(), 0)
	assert.True(t, d.NeedsRegeneration)
	assert.True(t, d.RecurringStatusChanged)
	assert.False(t, d.Collapse)
}
