package service

import (
	"context"
	"errors"
	"html"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/models"
	"github.com/noah-isme/roster-api/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	// ErrStudentNotFound indicates the requested student does not exist.
	ErrStudentNotFound = errors.New("student not found")
	// ErrInvalidDateJoined indicates an unparseable date_joined value on update.
	ErrInvalidDateJoined = errors.New("invalid date_joined value")
	// ErrInvalidLastLogin indicates an unparseable last_login value on update.
	ErrInvalidLastLogin = errors.New("invalid last_login value")
	// ErrInvalidSort indicates an unsupported sort key.
	ErrInvalidSort = errors.New("invalid sort key")
	// ErrInvalidStatusFilter indicates an unsupported status filter.
	ErrInvalidStatusFilter = errors.New("invalid status filter")
)

// StudentService orchestrates roster use cases.
type StudentService interface {
	List(ctx context.Context, req dto.StudentListRequest) (dto.StudentListResponse, error)
	Get(ctx context.Context, id uint) (dto.StudentResponse, error)
	Create(ctx context.Context, payload dto.StudentCreateRequest) (dto.StudentResponse, error)
	Update(ctx context.Context, id uint, payload dto.StudentUpdateRequest) (dto.StudentResponse, error)
	Delete(ctx context.Context, id uint) error
}

type studentService struct {
	repo      repository.StudentRepository
	validator *validator.Validate
	cache     *RosterCache
	changes   *rosterChanges
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewStudentService constructs the roster service. cache, events, and activity may be nil.
func NewStudentService(repo repository.StudentRepository, validate *validator.Validate, cache *RosterCache, events EventPublisher, activity ActivityRecorder, logger zerolog.Logger) StudentService {
	logger = logger.With().Str("component", "student_service").Logger()
	return &studentService{
		repo:      repo,
		validator: validate,
		cache:     cache,
		changes:   newRosterChanges(cache, events, activity, logger),
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/roster-api/internal/service/student"),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *studentService) List(ctx context.Context, req dto.StudentListRequest) (dto.StudentListResponse, error) {
	req, err := normalizeListRequest(req)
	if err != nil {
		return dto.StudentListResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "students.list", trace.WithAttributes(
		attribute.Bool("roster.paginate", req.Paginate),
		attribute.Int("roster.page", req.Page),
		attribute.Int("roster.size", req.Size),
	))
	defer span.End()

	cached, cacheKey, ok := s.cache.Get(spanCtx, req)
	if ok {
		span.SetAttributes(attribute.Bool("roster.cache_hit", true))
		return cached, nil
	}

	filter := repository.StudentFilter{
		Search: req.Search,
		Cohort: req.Cohort,
		Status: req.Status,
		Sort:   req.Sort,
	}
	if req.Paginate {
		filter.Page = req.Page
		filter.PageSize = req.Size
	}

	students, total, err := s.repo.List(spanCtx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return dto.StudentListResponse{}, err
	}

	response := dto.StudentListResponse{
		Items:      dto.NewStudentResponses(students),
		Pagination: paginationFor(req, total, len(students)),
	}
	s.cache.Set(spanCtx, cacheKey, response)

	return response, nil
}

func (s *studentService) Get(ctx context.Context, id uint) (dto.StudentResponse, error) {
	student, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.StudentResponse{}, translateNotFound(err)
	}

	return dto.NewStudentResponse(student), nil
}

func (s *studentService) Create(ctx context.Context, payload dto.StudentCreateRequest) (dto.StudentResponse, error) {
	payload.Name = s.cleanText(payload.Name)
	payload.Cohort = s.cleanText(payload.Cohort)
	payload.Courses = s.cleanCourses(payload.Courses)
	payload.Status = normalizeStatus(payload.Status)
	if payload.Status == "" {
		payload.Status = models.StudentStatusActive
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "students.create", trace.WithAttributes(
		attribute.String("student.cohort", payload.Cohort),
		attribute.Int("student.courses", len(payload.Courses)),
	))
	defer span.End()

	now := s.now()
	student := models.Student{
		Name:       payload.Name,
		Cohort:     payload.Cohort,
		Courses:    datatypes.JSONSlice[string](payload.Courses.Values()),
		DateJoined: payload.DateJoined.ResolveOrDefault(now),
		LastLogin:  payload.LastLogin.ResolveOrDefault(now),
		Status:     payload.Status,
	}

	if err := s.repo.Create(spanCtx, &student); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return dto.StudentResponse{}, err
	}

	response := dto.NewStudentResponse(student)
	s.changes.studentCreated(spanCtx, response)

	return response, nil
}

func (s *studentService) Update(ctx context.Context, id uint, payload dto.StudentUpdateRequest) (dto.StudentResponse, error) {
	payload.Name = s.cleanText(payload.Name)
	payload.Cohort = s.cleanText(payload.Cohort)
	payload.Courses = s.cleanCourses(payload.Courses)
	payload.Status = normalizeStatus(payload.Status)

	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}

	now := s.now()
	dateJoined, err := payload.DateJoined.Resolve(now)
	if err != nil {
		return dto.StudentResponse{}, ErrInvalidDateJoined
	}
	lastLogin, err := payload.LastLogin.Resolve(now)
	if err != nil {
		return dto.StudentResponse{}, ErrInvalidLastLogin
	}

	spanCtx, span := s.tracer.Start(ctx, "students.update", trace.WithAttributes(
		attribute.Int64("student.id", int64(id)),
	))
	defer span.End()

	student, err := s.repo.Replace(spanCtx, id, models.Student{
		Name:       payload.Name,
		Cohort:     payload.Cohort,
		Courses:    datatypes.JSONSlice[string](payload.Courses.Values()),
		DateJoined: dateJoined,
		LastLogin:  lastLogin,
		Status:     payload.Status,
	})
	if err != nil {
		err = translateNotFound(err)
		if !errors.Is(err, ErrStudentNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
		}
		return dto.StudentResponse{}, err
	}

	response := dto.NewStudentResponse(student)
	s.changes.studentUpdated(spanCtx, response)

	return response, nil
}

func (s *studentService) Delete(ctx context.Context, id uint) error {
	spanCtx, span := s.tracer.Start(ctx, "students.delete", trace.WithAttributes(
		attribute.Int64("student.id", int64(id)),
	))
	defer span.End()

	if err := s.repo.Delete(spanCtx, id); err != nil {
		err = translateNotFound(err)
		if !errors.Is(err, ErrStudentNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delete failed")
		}
		return err
	}

	s.changes.studentDeleted(spanCtx, id)
	return nil
}

func (s *studentService) cleanText(value string) string {
	return sanitizeText(s.sanitizer, value)
}

func (s *studentService) cleanCourses(courses dto.CourseList) dto.CourseList {
	cleaned := make(dto.CourseList, 0, len(courses))
	for _, course := range courses {
		if value := s.cleanText(course); value != "" {
			cleaned = append(cleaned, value)
		}
	}
	return cleaned
}

const maxSanitizePasses = 4

// sanitizeText strips markup and decodes entities until the value is stable, so
// entity-encoded tags cannot survive as literal markup. Values that are still
// changing after maxSanitizePasses are returned in their escaped form.
func sanitizeText(policy *bluemonday.Policy, value string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(policy.Sanitize(value))
		if next == value {
			return strings.TrimSpace(value)
		}
		value = next
	}
	return strings.TrimSpace(policy.Sanitize(value))
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func normalizeListRequest(req dto.StudentListRequest) (dto.StudentListRequest, error) {
	req.Search = strings.TrimSpace(req.Search)
	req.Cohort = strings.TrimSpace(req.Cohort)
	req.Status = normalizeStatus(req.Status)
	req.Sort = strings.TrimSpace(req.Sort)

	if req.Sort == "" {
		req.Sort = repository.DefaultStudentSort
	}
	if _, ok := repository.StudentOrderClause(req.Sort); !ok {
		return req, ErrInvalidSort
	}
	if req.Status != "" && !models.IsValidStudentStatus(req.Status) {
		return req, ErrInvalidStatusFilter
	}

	if !req.Paginate {
		req.Page = 0
		req.Size = 0
		return req, nil
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	req.Size = clampPageSize(req.Size)
	return req, nil
}

func clampPageSize(size int) int {
	switch {
	case size <= 0:
		return defaultPageSize
	case size > maxPageSize:
		return maxPageSize
	default:
		return size
	}
}

func paginationFor(req dto.StudentListRequest, total int64, returned int) dto.PaginationMeta {
	if !req.Paginate {
		return dto.PaginationMeta{
			Page:       1,
			PageSize:   returned,
			TotalItems: total,
			TotalPages: 1,
		}
	}

	pages := int(math.Ceil(float64(total) / float64(req.Size)))
	return dto.PaginationMeta{
		Page:       req.Page,
		PageSize:   req.Size,
		TotalItems: total,
		TotalPages: pages,
		HasMore:    int64(req.Page)*int64(req.Size) < total,
	}
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrStudentNotFound
	}
	return err
}
