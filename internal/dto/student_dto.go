package dto

import (
	"time"

	"github.com/noah-isme/roster-api/internal/models"
)

// StudentCreateRequest is the body accepted by POST /students.
type StudentCreateRequest struct {
	Name       string         `json:"name" validate:"required,max=255"`
	Cohort     string         `json:"cohort" validate:"required,max=128"`
	Courses    CourseList     `json:"courses" validate:"max=50,dive,max=128"`
	DateJoined TimestampInput `json:"dateJoined"`
	LastLogin  TimestampInput `json:"lastLogin"`
	Status     string         `json:"status" validate:"omitempty,oneof=active inactive"`
}

// StudentUpdateRequest is the body accepted by PUT /students/:id. It replaces every mutable field.
type StudentUpdateRequest struct {
	Name       string         `json:"name" validate:"required,max=255"`
	Cohort     string         `json:"cohort" validate:"required,max=128"`
	Courses    CourseList     `json:"courses" validate:"max=50,dive,max=128"`
	DateJoined TimestampInput `json:"date_joined"`
	LastLogin  TimestampInput `json:"last_login"`
	Status     string         `json:"status" validate:"required,oneof=active inactive"`
}

// StudentListRequest defines filters and paging for listing the roster.
type StudentListRequest struct {
	Paginate bool
	Page     int
	Size     int
	Search   string
	Cohort   string
	Status   string
	Sort     string
}

// StudentResponse serializes a roster entry.
type StudentResponse struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	Cohort     string    `json:"cohort"`
	Courses    []string  `json:"courses"`
	DateJoined time.Time `json:"date_joined"`
	LastLogin  time.Time `json:"last_login"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StudentListResponse wraps a roster listing together with its paging metadata.
type StudentListResponse struct {
	Items      []StudentResponse `json:"items"`
	Pagination PaginationMeta    `json:"pagination"`
	CacheHit   bool              `json:"cache_hit"`
}

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// NewStudentResponse converts a student model into its wire form.
func NewStudentResponse(student models.Student) StudentResponse {
	courses := make([]string, 0, len(student.Courses))
	courses = append(courses, student.Courses...)

	return StudentResponse{
		ID:         student.ID,
		Name:       student.Name,
		Cohort:     student.Cohort,
		Courses:    courses,
		DateJoined: student.DateJoined.UTC(),
		LastLogin:  student.LastLogin.UTC(),
		Status:     student.Status,
		CreatedAt:  student.CreatedAt.UTC(),
		UpdatedAt:  student.UpdatedAt.UTC(),
	}
}

// NewStudentResponses converts a slice of models, never returning nil.
func NewStudentResponses(students []models.Student) []StudentResponse {
	responses := make([]StudentResponse, 0, len(students))
	for _, student := range students {
		responses = append(responses, NewStudentResponse(student))
	}
	return responses
}
