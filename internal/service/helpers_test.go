package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/models"
	"github.com/noah-isme/roster-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return dto.NewValidator()
}

var testDBSeq atomic.Int64

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%d_%s?mode=memory&cache=shared", testDBSeq.Add(1), t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Student{}, &models.ActivityLog{}))
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.StudentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event dto.StudentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]string, 0, len(p.events))
	for _, event := range p.events {
		result = append(result, event.Type)
	}
	return result
}

type failingStudentRepo struct {
	repository.StudentRepository
	err error
}

func (r failingStudentRepo) List(context.Context, repository.StudentFilter) ([]models.Student, int64, error) {
	return nil, 0, r.err
}

// mutatingStudentRepo runs mutate once, right after the first List has read from storage.
type mutatingStudentRepo struct {
	repository.StudentRepository
	once   sync.Once
	mutate func()
}

func (r *mutatingStudentRepo) List(ctx context.Context, filter repository.StudentFilter) ([]models.Student, int64, error) {
	students, total, err := r.StudentRepository.List(ctx, filter)
	r.once.Do(r.mutate)
	return students, total, err
}
