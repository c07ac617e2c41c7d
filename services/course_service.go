package services

import (
	"context"
	"strings"

	"trainhub_go/apperror"
	"trainhub_go/models"
	"trainhub_go/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CourseInput is used for both create and partial update.
type CourseInput struct {
	Title         *string       `json:"title" validate:"omitempty,max=255"`
	Description   *string       `json:"description"`
	Category      *string       `json:"category" validate:"omitempty,max=100"`
	Level         *models.Level `json:"level" validate:"omitempty,enum"`
	DurationHours *int          `json:"duration_hours" validate:"omitempty,min=0"`
	MaxStudents   *int          `json:"max_students" validate:"omitempty,min=0"`
	Status        *bool         `json:"status"`
}

type CourseFilter struct {
	Level    string
	Category string
	Status   *bool
}

type CourseService struct {
	db *gorm.DB
}

func NewCourseService(db *gorm.DB) *CourseService {
	return &CourseService{db: db}
}

func (s *CourseService) List(ctx context.Context, f CourseFilter) ([]models.Course, error) {
	q := s.db.WithContext(ctx).Model(&models.Course{})
	if f.Level != "" {
		q = q.Where("level = ?", f.Level)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	var courses []models.Course
	if err := q.Order("created_at DESC, id DESC").Find(&courses).Error; err != nil {
		return nil, errors.Wrap(err, "list courses")
	}
	return courses, nil
}

func (s *CourseService) Get(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, notFoundOr(err, "course")
	}
	return &course, nil
}

func (s *CourseService) Create(ctx context.Context, ident Identity, in CourseInput) (*models.Course, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, apperror.Validation("title", "this field is required")
	}
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}

	course := models.Course{Status: true}
	in.applyTo(&course)
	if err := s.db.WithContext(ctx).Create(&course).Error; err != nil {
		return nil, errors.Wrap(err, "create course")
	}
	return &course, nil
}

func (s *CourseService) Update(ctx context.Context, ident Identity, id uint, in CourseInput) (*models.Course, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, apperror.Validation("title", "title cannot be blank")
	}
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.applyTo(course)
	if err := s.db.WithContext(ctx).Save(course).Error; err != nil {
		return nil, errors.Wrap(err, "update course")
	}
	return course, nil
}

// Delete refuses while schedules still point at the course.
func (s *CourseService) Delete(ctx context.Context, ident Identity, id uint) error {
	if err := ident.requireManager(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course models.Course
		if err := tx.First(&course, id).Error; err != nil {
			return notFoundOr(err, "course")
		}
		var n int64
		if err := tx.Model(&models.Schedule{}).Where("course_id = ?", id).Count(&n).Error; err != nil {
			return errors.Wrap(err, "count course schedules")
		}
		if n > 0 {
			return apperror.Conflict("course still has scheduled trainings")
		}
		return errors.Wrap(tx.Delete(&course).Error, "delete course")
	})
}

func (in CourseInput) applyTo(c *models.Course) {
	if in.Title != nil {
		c.Title = utils.SanitizeString(*in.Title)
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		c.Category = utils.SanitizeString(*in.Category)
	}
	if in.Level != nil {
		c.Level = *in.Level
	}
	if in.DurationHours != nil {
		c.DurationHours = *in.DurationHours
	}
	if in.MaxStudents != nil {
		c.MaxStudents = *in.MaxStudents
	}
	if in.Status != nil {
		c.Status = *in.Status
	}
}

// notFoundOr maps gorm's missing record error to apperror.ErrNotFound.
func notFoundOr(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(resource)
	}
	return errors.Wrapf(err, "load %s", resource)
}
