package model

import "time"

// Occurrence statuses.
const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusOnHold     = "ON_HOLD"
	StatusCompleted  = "COMPLETED"
)

// TaskOccurrence is one schedulable instance of a task. Rows are created and
// deleted only by synchronization.
type TaskOccurrence struct {
	ID              uint      `gorm:"primaryKey"`
	TaskID          uint      `gorm:"not null;uniqueIndex:idx_task_occurrence_index,priority:1"`
	OccurrenceIndex int       `gorm:"not null;uniqueIndex:idx_task_occurrence_index,priority:2"`
	StartDate       time.Time `gorm:"index"`
	DueDate         time.Time

	Title       string
	Description string
	Status      string
	Priority    string
	Remarks     string
	ClientID    *uint
	ProjectID   *uint
	IsCompleted bool `gorm:"default:false"`
	CompletedAt *time.Time

	AssignedToID *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OccurrenceAssignee joins an occurrence with one user.
type OccurrenceAssignee struct {
	OccurrenceID uint `gorm:"primaryKey;autoIncrement:false"`
	UserID       uint `gorm:"primaryKey;autoIncrement:false;index"`
}
