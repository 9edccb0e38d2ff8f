package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/roster-api/internal/models"
)

// DefaultStudentSort orders the roster alphabetically.
const DefaultStudentSort = "name"

// likeEscaper makes LIKE wildcards in user search terms match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

var studentSortColumns = map[string]string{
	"id":          "id",
	"name":        "LOWER(name)",
	"cohort":      "LOWER(cohort)",
	"date_joined": "date_joined",
	"last_login":  "last_login",
	"status":      "status",
}

// StudentFilter defines the roster query. A zero PageSize returns every matching row.
type StudentFilter struct {
	Search   string
	Cohort   string
	Status   string
	Sort     string
	Page     int
	PageSize int
}

// StudentRepository exposes persistence helpers for roster records.
type StudentRepository interface {
	List(ctx context.Context, filter StudentFilter) ([]models.Student, int64, error)
	GetByID(ctx context.Context, id uint) (models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	CreateBatch(ctx context.Context, students []models.Student) error
	Replace(ctx context.Context, id uint, student models.Student) (models.Student, error)
	Delete(ctx context.Context, id uint) error
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

// StudentOrderClause translates a public sort key ("name", "-date_joined") into an ORDER BY clause.
// Ties are broken by id so pages stay stable.
func StudentOrderClause(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultStudentSort
	}

	direction := "ASC"
	if strings.HasPrefix(key, "-") {
		direction = "DESC"
		key = strings.TrimPrefix(key, "-")
	}

	column, ok := studentSortColumns[key]
	if !ok {
		return "", false
	}
	if column == "id" {
		return "id " + direction, true
	}
	return column + " " + direction + ", id ASC", true
}

func (r *studentRepository) List(ctx context.Context, filter StudentFilter) ([]models.Student, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Student{})

	if filter.Search != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(filter.Search)) + "%"
		query = query.Where(`LOWER(name) LIKE ? ESCAPE '\'`, like)
	}

	if filter.Cohort != "" {
		query = query.Where("cohort = ?", filter.Cohort)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order, ok := StudentOrderClause(filter.Sort)
	if !ok {
		order, _ = StudentOrderClause(DefaultStudentSort)
	}
	query = query.Order(order)

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Limit(filter.PageSize).Offset(offset)
	}

	students := make([]models.Student, 0)
	if err := query.Find(&students).Error; err != nil {
		return nil, 0, err
	}

	return students, total, nil
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *studentRepository) CreateBatch(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&students, 100).Error
	})
}

func (r *studentRepository) Replace(ctx context.Context, id uint, student models.Student) (models.Student, error) {
	var updated models.Student
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Student{}).
			Where("id = ?", id).
			Select("name", "cohort", "courses", "date_joined", "last_login", "status", "updated_at").
			Updates(&models.Student{
				Name:       student.Name,
				Cohort:     student.Cohort,
				Courses:    student.Courses,
				DateJoined: student.DateJoined,
				LastLogin:  student.LastLogin,
				Status:     student.Status,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.First(&updated, id).Error
	})
	if err != nil {
		return models.Student{}, err
	}

	return updated, nil
}

func (r *studentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Student{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
