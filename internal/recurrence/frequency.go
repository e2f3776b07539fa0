package recurrence

import "strings"

// Frequency is the closed set of cadences a task can repeat on.
type Frequency string

const (
	FrequencyNone      Frequency = ""
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

// IsRecurring reports whether f names an actual cadence.
func (f Frequency) IsRecurring() bool {
	return f != FrequencyNone
}

func (f Frequency) String() string {
	if f == FrequencyNone {
		return "NONE"
	}
	return string(f)
}

var simpleTokens = map[string]Frequency{
	"DAILY":     FrequencyDaily,
	"WEEKLY":    FrequencyWeekly,
	"MONTHLY":   FrequencyMonthly,
	"QUARTERLY": FrequencyQuarterly,
	"YEARLY":    FrequencyYearly,
}

// RRULE FREQ values we understand; QUARTERLY is only reachable through INTERVAL=3.
var ruleFrequencies = map[string]Frequency{
	"DAILY":   FrequencyDaily,
	"WEEKLY":  FrequencyWeekly,
	"MONTHLY": FrequencyMonthly,
	"YEARLY":  FrequencyYearly,
}

// Parse normalizes free-form recurrence input into a Frequency.
// It accepts the simple tokens (case-insensitive) and a narrow RRULE form
// such as "FREQ=MONTHLY;INTERVAL=3". Anything else yields FrequencyNone.
func Parse(input string) Frequency {
	value := strings.ToUpper(strings.TrimSpace(input))
	if value == "" {
		return FrequencyNone
	}
	if f, ok := simpleTokens[value]; ok {
		return f
	}
	value = strings.TrimPrefix(value, "RRULE:")
	if !strings.Contains(value, "FREQ=") {
		return FrequencyNone
	}
	return parseRule(value)
}

func parseRule(value string) Frequency {
	var freq, interval string
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return FrequencyNone
		}
		switch strings.TrimSpace(key) {
		case "FREQ":
			freq = strings.TrimSpace(val)
		case "INTERVAL":
			interval = strings.TrimSpace(val)
		}
	}

	base, ok := ruleFrequencies[freq]
	if !ok {
		return FrequencyNone
	}
	switch interval {
	case "", "1":
		return base
	case "3":
		if base == FrequencyMonthly {
			return FrequencyQuarterly
		}
	}
	return FrequencyNone
}

// Normalize returns the canonical string for a raw rule, used when
// comparing rule edits.
func Normalize(input string) string {
	return Parse(input).String()
}
