package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/models"
)

// rosterChanges runs the side effects shared by every successful mutation: cache invalidation, the
// audit entry, and the change event. Failures are logged and never surface to the caller.
type rosterChanges struct {
	cache    *RosterCache
	events   EventPublisher
	activity ActivityRecorder
	logger   zerolog.Logger
}

func newRosterChanges(cache *RosterCache, events EventPublisher, activity ActivityRecorder, logger zerolog.Logger) *rosterChanges {
	return &rosterChanges{
		cache:    cache,
		events:   events,
		activity: activity,
		logger:   logger,
	}
}

func (r *rosterChanges) studentCreated(ctx context.Context, student dto.StudentResponse) {
	id := student.ID
	r.apply(ctx, ActivityEntry{
		Action:     models.ActivityStudentCreated,
		EntityType: activityEntityStudent,
		EntityID:   &id,
		Metadata:   map[string]interface{}{"name": student.Name, "cohort": student.Cohort},
	}, dto.StudentEvent{Type: dto.StudentEventCreated, StudentID: id, Student: &student})
}

func (r *rosterChanges) studentUpdated(ctx context.Context, student dto.StudentResponse) {
	id := student.ID
	r.apply(ctx, ActivityEntry{
		Action:     models.ActivityStudentUpdated,
		EntityType: activityEntityStudent,
		EntityID:   &id,
		Metadata: map[string]interface{}{
			"name":   student.Name,
			"cohort": student.Cohort,
			"status": student.Status,
		},
	}, dto.StudentEvent{Type: dto.StudentEventUpdated, StudentID: id, Student: &student})
}

func (r *rosterChanges) studentDeleted(ctx context.Context, id uint) {
	r.apply(ctx, ActivityEntry{
		Action:     models.ActivityStudentDeleted,
		EntityType: activityEntityStudent,
		EntityID:   &id,
		Metadata:   map[string]interface{}{"student_id": id},
	}, dto.StudentEvent{Type: dto.StudentEventDeleted, StudentID: id})
}

func (r *rosterChanges) rosterImported(ctx context.Context, imported, skipped int) {
	r.apply(ctx, ActivityEntry{
		Action:     models.ActivityStudentImported,
		EntityType: activityEntityStudent,
		Metadata:   map[string]interface{}{"imported": imported, "skipped": skipped},
	}, dto.StudentEvent{Type: dto.StudentEventImported, Count: imported})
}

func (r *rosterChanges) apply(ctx context.Context, entry ActivityEntry, event dto.StudentEvent) {
	if err := r.cache.Invalidate(ctx); err != nil {
		r.logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to invalidate roster cache")
	}

	if r.activity != nil {
		if err := r.activity.Record(ctx, entry); err != nil {
			r.logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to record roster activity")
		}
	}

	if r.events != nil {
		r.events.Publish(ctx, event)
	}
}
