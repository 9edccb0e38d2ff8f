package dto

import "time"

// Student event types pushed to stream subscribers.
const (
	StudentEventCreated  = "student.created"
	StudentEventUpdated  = "student.updated"
	StudentEventDeleted  = "student.deleted"
	StudentEventImported = "roster.imported"
)

// StudentEvent notifies subscribers that the roster changed and cached copies are stale.
type StudentEvent struct {
	Type       string           `json:"type"`
	StudentID  uint             `json:"student_id,omitempty"`
	Student    *StudentResponse `json:"student,omitempty"`
	Count      int              `json:"count,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
	Source     string           `json:"source"`
}
