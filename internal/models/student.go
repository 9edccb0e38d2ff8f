package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Student status values.
const (
	StudentStatusActive   = "active"
	StudentStatusInactive = "inactive"
)

// Student represents a learner on the roster.
type Student struct {
	ID         uint                        `gorm:"primaryKey" json:"id"`
	Name       string                      `gorm:"size:255;not null;index" json:"name"`
	Cohort     string                      `gorm:"size:128;not null;index" json:"cohort"`
	Courses    datatypes.JSONSlice[string] `gorm:"not null" json:"courses"`
	DateJoined time.Time                   `gorm:"not null" json:"date_joined"`
	LastLogin  time.Time                   `gorm:"not null" json:"last_login"`
	Status     string                      `gorm:"size:16;not null;index;default:active" json:"status"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// IsValidStudentStatus reports whether the status belongs to the supported set.
func IsValidStudentStatus(status string) bool {
	return status == StudentStatusActive || status == StudentStatusInactive
}

// BeforeSave keeps courses stored as a JSON array and timestamps in UTC.
func (s *Student) BeforeSave(_ *gorm.DB) error {
	if s.Courses == nil {
		s.Courses = datatypes.JSONSlice[string]{}
	}
	s.DateJoined = s.DateJoined.UTC()
	s.LastLogin = s.LastLogin.UTC()
	return nil
}
