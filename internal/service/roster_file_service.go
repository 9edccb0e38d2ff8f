package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/models"
	"github.com/noah-isme/roster-api/internal/repository"
)

const rosterSheetName = "Roster"

var rosterColumns = []interface{}{"Name", "Cohort", "Courses", "Date Joined", "Last Login", "Status"}

var (
	// ErrImportTooLarge indicates the uploaded workbook exceeds the configured limit.
	ErrImportTooLarge = errors.New("import file too large")
	// ErrImportFileInvalid indicates the upload is not a readable xlsx workbook.
	ErrImportFileInvalid = errors.New("import file must be an xlsx workbook")
)

// RosterFileService moves the roster in and out of spreadsheets.
type RosterFileService interface {
	Export(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, file io.Reader) (dto.RosterImportResponse, error)
}

type rosterFileService struct {
	repo      repository.StudentRepository
	validate  *validator.Validate
	changes   *rosterChanges
	maxBytes  int64
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRosterFileService constructs the spreadsheet import/export service. Imported rows are
// held to the same validation rules as POST /students.
func NewRosterFileService(repo repository.StudentRepository, validate *validator.Validate, cache *RosterCache, events EventPublisher, activity ActivityRecorder, maxBytes int64, logger zerolog.Logger) RosterFileService {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	logger = logger.With().Str("component", "roster_file_service").Logger()
	return &rosterFileService{
		repo:      repo,
		validate:  validate,
		changes:   newRosterChanges(cache, events, activity, logger),
		maxBytes:  maxBytes,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/roster-api/internal/service/roster_file"),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *rosterFileService) Export(ctx context.Context) ([]byte, error) {
	spanCtx, span := s.tracer.Start(ctx, "roster.export")
	defer span.End()

	students, _, err := s.repo.List(spanCtx, repository.StudentFilter{Sort: repository.DefaultStudentSort})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close roster workbook")
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), rosterSheetName); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(rosterSheetName, "A1", &rosterColumns); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(rosterSheetName, 1, 1, headerStyle); err != nil {
		return nil, err
	}

	for i, student := range students {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			student.Name,
			student.Cohort,
			strings.Join(student.Courses, ", "),
			student.DateJoined.UTC().Format(time.RFC3339),
			student.LastLogin.UTC().Format(time.RFC3339),
			student.Status,
		}
		if err := f.SetSheetRow(rosterSheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(rosterSheetName, "A", "F", 24); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("roster.rows", len(students)))
	return buf.Bytes(), nil
}

func (s *rosterFileService) Import(ctx context.Context, file io.Reader) (dto.RosterImportResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "roster.import")
	defer span.End()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(file, s.maxBytes+1)); err != nil {
		span.RecordError(err)
		return dto.RosterImportResponse{}, err
	}
	if int64(buf.Len()) > s.maxBytes {
		span.SetStatus(codes.Error, "payload too large")
		return dto.RosterImportResponse{}, ErrImportTooLarge
	}

	if !isSpreadsheet(buf.Bytes()) {
		span.SetStatus(codes.Error, "type not allowed")
		return dto.RosterImportResponse{}, ErrImportFileInvalid
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return dto.RosterImportResponse{}, fmt.Errorf("%w: %v", ErrImportFileInvalid, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close imported workbook")
		}
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return dto.RosterImportResponse{}, ErrImportFileInvalid
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return dto.RosterImportResponse{}, fmt.Errorf("%w: %v", ErrImportFileInvalid, err)
	}

	now := s.now()
	students := make([]models.Student, 0, len(rows))
	skipped := make([]int, 0)
	for i, row := range rows {
		if i == 0 {
			continue
		}
		student, ok := s.studentFromRow(row, now)
		if !ok {
			skipped = append(skipped, i+1)
			continue
		}
		students = append(students, student)
	}

	if err := s.repo.CreateBatch(spanCtx, students); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return dto.RosterImportResponse{}, err
	}

	response := dto.RosterImportResponse{
		Imported:    len(students),
		Skipped:     len(skipped),
		SkippedRows: skipped,
	}
	span.SetAttributes(
		attribute.Int("roster.imported", response.Imported),
		attribute.Int("roster.skipped", response.Skipped),
	)

	if response.Imported > 0 {
		s.changes.rosterImported(spanCtx, response.Imported, response.Skipped)
	}
	s.logger.Info().Int("imported", response.Imported).Int("skipped", response.Skipped).Msg("roster imported")

	return response, nil
}

// Columns: Name, Cohort, Courses (comma separated), Date Joined, Last Login, Status.
func (s *rosterFileService) studentFromRow(row []string, now time.Time) (models.Student, bool) {
	cell := func(index int) string {
		if index < len(row) {
			return sanitizeText(s.sanitizer, row[index])
		}
		return ""
	}

	req := dto.StudentCreateRequest{
		Name:    cell(0),
		Cohort:  cell(1),
		Courses: dto.CourseList{},
		Status:  normalizeStatus(cell(5)),
	}
	for _, course := range strings.Split(cell(2), ",") {
		if course = strings.TrimSpace(course); course != "" {
			req.Courses = append(req.Courses, course)
		}
	}
	if err := s.validate.Struct(req); err != nil {
		return models.Student{}, false
	}

	status := req.Status
	if status == "" {
		status = models.StudentStatusActive
	}

	return models.Student{
		Name:       req.Name,
		Cohort:     req.Cohort,
		Courses:    datatypes.JSONSlice[string](req.Courses),
		DateJoined: dto.Timestamp(cell(3)).ResolveOrDefault(now),
		LastLogin:  dto.Timestamp(cell(4)).ResolveOrDefault(now),
		Status:     status,
	}, true
}

func isSpreadsheet(data []byte) bool {
	for mime := mimetype.Detect(data); mime != nil; mime = mime.Parent() {
		if mime.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet") || mime.Is("application/zip") {
			return true
		}
	}
	return false
}
