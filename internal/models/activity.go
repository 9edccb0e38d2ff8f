package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity actions recorded for roster mutations.
const (
	ActivityStudentCreated  = "student.created"
	ActivityStudentUpdated  = "student.updated"
	ActivityStudentDeleted  = "student.deleted"
	ActivityStudentImported = "student.imported"
)

// ActivityLog captures an auditable roster mutation.
type ActivityLog struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Action        string            `gorm:"size:64;not null;index" json:"action"`
	EntityType    string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID      *uint             `gorm:"index" json:"entity_id"`
	CorrelationID string            `gorm:"size:64" json:"correlation_id"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}
