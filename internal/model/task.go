package model

import (
	"time"

	"taskflow/internal/recurrence"
)

// Task is the master definition that owns a series of occurrences.
type Task struct {
	ID          uint `gorm:"primaryKey"`
	OrgID       uint `gorm:"index"`
	Title       string
	Description string
	Status      string `gorm:"default:OPEN"`
	Priority    string
	Remarks     string
	ClientID    *uint `gorm:"index"`
	ProjectID   *uint `gorm:"index"`

	StartDate time.Time
	DueDate   time.Time
	// Timezone is the IANA zone the series is stepped in; empty means the
	// service default.
	Timezone string

	RecurrenceRule     recurrence.Frequency `gorm:"type:varchar(16)"`
	RecurrenceEndDate  *time.Time
	IsRecurring        bool `gorm:"default:false;index"`
	LastGeneratedUntil *time.Time

	// AssignedToID mirrors the first entry of the assignee set.
	AssignedToID *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Duration is the per-occurrence span derived from the task dates.
func (t Task) Duration() time.Duration {
	if t.DueDate.Before(t.StartDate) {
		return 0
	}
	return t.DueDate.Sub(t.StartDate)
}

// Frequency returns the parsed cadence of the task.
func (t Task) Frequency() recurrence.Frequency {
	return recurrence.Parse(string(t.RecurrenceRule))
}

// Snapshot captures the fields that drive regeneration decisions.
func (t Task) Snapshot() recurrence.Snapshot {
	return recurrence.Snapshot{
		Rule:        string(t.RecurrenceRule),
		IsRecurring: t.IsRecurring,
		StartDate:   t.StartDate,
		DueDate:     t.DueDate,
		EndDate:     t.RecurrenceEndDate,
	}
}

// TaskAssignee stores the ordered task-level assignee set.
type TaskAssignee struct {
	TaskID   uint `gorm:"primaryKey;autoIncrement:false"`
	UserID   uint `gorm:"primaryKey;autoIncrement:false"`
	Position int
}
