package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/middleware"
	"github.com/noah-isme/roster-api/internal/models"
	"github.com/noah-isme/roster-api/internal/repository"
)

const (
	activityEntityStudent = "student"
	activityListLimit     = 100
)

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	Action     string
	EntityType string
	EntityID   *uint
	Metadata   map[string]interface{}
}

// ActivityRecorder defines behaviour for recording activity logs.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

// ActivityService records roster mutations and lists them per student.
type ActivityService interface {
	ActivityRecorder
	ListForStudent(ctx context.Context, studentID uint) ([]dto.ActivityResponse, error)
}

type activityService struct {
	repo        repository.ActivityLogRepository
	studentRepo repository.StudentRepository
	logger      zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, studentRepo repository.StudentRepository, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:        repo,
		studentRepo: studentRepo,
		logger:      logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) error {
	if strings.TrimSpace(entry.Action) == "" {
		return fmt.Errorf("action is required")
	}
	if strings.TrimSpace(entry.EntityType) == "" {
		return fmt.Errorf("entity type is required")
	}

	metadata := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		metadata[key] = value
	}

	model := models.ActivityLog{
		Action:        strings.ToLower(strings.TrimSpace(entry.Action)),
		EntityType:    strings.ToLower(strings.TrimSpace(entry.EntityType)),
		EntityID:      entry.EntityID,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
		Metadata:      metadata,
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist activity log")
		return err
	}

	return nil
}

// ListForStudent returns the most recent audit entries for a student. Entries outlive a deleted
// student, so only ids that never existed and have no history are reported as missing.
func (s *activityService) ListForStudent(ctx context.Context, studentID uint) ([]dto.ActivityResponse, error) {
	entries, err := s.repo.ListByEntity(ctx, activityEntityStudent, studentID, activityListLimit)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		if _, err := s.studentRepo.GetByID(ctx, studentID); err != nil {
			return nil, translateNotFound(err)
		}
	}

	responses := make([]dto.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewActivityResponse(entry))
	}
	return responses, nil
}
