// Package recurrence holds the pure parts of the occurrence engine: rule
// parsing, series expansion with month-end clamping, the preservation
// cutoff and the regeneration decision for task updates.
//
// Nothing in this package touches storage or the wall clock; callers pass
// the zone and the current time in.
package recurrence
