package model

import "time"

// User is an organization member that tasks can be assigned to.
type User struct {
	ID        uint `gorm:"primaryKey"`
	OrgID     uint `gorm:"index"`
	Name      string
	Email     string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
