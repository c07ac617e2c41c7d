package services

import (
	"context"
	"strings"
	"time"

	"trainhub_go/apperror"
	"trainhub_go/models"
	"trainhub_go/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ScheduleInput is used for both create and partial update. Create
// requires the fields marked in requiredOnCreate.
type ScheduleInput struct {
	CourseID       *uint                  `json:"course_id"`
	InstructorID   *uint                  `json:"instructor_id"`
	Title          *string                `json:"title" validate:"omitempty,max=255"`
	StartTime      *utils.FlexTime        `json:"start_time"`
	EndTime        *utils.FlexTime        `json:"end_time"`
	Location       *string                `json:"location" validate:"omitempty,max=255"`
	Mode           *models.Mode           `json:"mode" validate:"omitempty,enum"`
	IsRecurring    *bool                  `json:"is_recurring"`
	MaxEnrollments *int                   `json:"max_enrollments" validate:"omitempty,min=0"`
	Status         *models.ScheduleStatus `json:"status" validate:"omitempty,enum"`
}

type ScheduleFilter struct {
	Status       string
	CourseID     uint
	InstructorID uint
	Upcoming     bool
}

type ScheduleService struct {
	db    *gorm.DB
	locks *KeyedLocker
	now   func() time.Time
}

func NewScheduleService(db *gorm.DB, locks *KeyedLocker) *ScheduleService {
	if locks == nil {
		locks = NewKeyedLocker()
	}
	return &ScheduleService{db: db, locks: locks, now: time.Now}
}

func (s *ScheduleService) List(ctx context.Context, f ScheduleFilter) ([]models.Schedule, error) {
	q := s.db.WithContext(ctx).Model(&models.Schedule{}).
		Preload("Course").
		Preload("Instructor.User")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CourseID != 0 {
		q = q.Where("course_id = ?", f.CourseID)
	}
	if f.InstructorID != 0 {
		q = q.Where("instructor_id = ?", f.InstructorID)
	}
	if f.Upcoming {
		q = q.Where("start_time > ?", s.now().UTC())
	}
	var schedules []models.Schedule
	if err := q.Order("start_time ASC, id ASC").Find(&schedules).Error; err != nil {
		return nil, errors.Wrap(err, "list schedules")
	}
	return schedules, nil
}

// Get returns the schedule with its course, instructor and enrollments.
func (s *ScheduleService) Get(ctx context.Context, id uint) (*models.Schedule, error) {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).
		Preload("Course").
		Preload("Instructor.User").
		Preload("Enrollments", func(db *gorm.DB) *gorm.DB { return db.Order("enrolled_at ASC, id ASC") }).
		Preload("Enrollments.Student.User").
		First(&schedule, id).Error
	if err != nil {
		return nil, notFoundOr(err, "schedule")
	}
	return &schedule, nil
}

func (s *ScheduleService) Create(ctx context.Context, ident Identity, in ScheduleInput) (*models.Schedule, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	if err := in.requiredOnCreate(); err != nil {
		return nil, err
	}
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}

	schedule := models.Schedule{Status: models.ScheduleScheduled}
	in.applyTo(&schedule)
	if err := validateSchedule(&schedule); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureScheduleRefs(tx, schedule.CourseID, schedule.InstructorID); err != nil {
			return err
		}
		return errors.Wrap(tx.Omit("Course", "Instructor", "Enrollments", "Attendance").Create(&schedule).Error, "create schedule")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, schedule.ID)
}

// Update merges in over the stored row and re-validates the result, so
// a lone end_time is still checked against the stored start_time.
func (s *ScheduleService) Update(ctx context.Context, ident Identity, id uint, in ScheduleInput) (*models.Schedule, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, apperror.Validation("title", "title cannot be blank")
	}
	if err := utils.Validate(&in); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := lockSchedule(tx, id)
		if err != nil {
			return err
		}
		in.applyTo(schedule)
		if err := validateSchedule(schedule); err != nil {
			return err
		}
		if in.CourseID != nil || in.InstructorID != nil {
			if err := ensureScheduleRefs(tx, schedule.CourseID, schedule.InstructorID); err != nil {
				return err
			}
		}
		if in.MaxEnrollments != nil {
			active, err := countActive(tx, id)
			if err != nil {
				return err
			}
			if int64(*in.MaxEnrollments) < active {
				return apperror.Conflict("max_enrollments is below the current number of enrolled students")
			}
		}
		return errors.Wrap(tx.Omit("Course", "Instructor", "Enrollments", "Attendance").Save(schedule).Error, "update schedule")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes the schedule together with its enrollments and attendance.
func (s *ScheduleService) Delete(ctx context.Context, ident Identity, id uint) error {
	if err := ident.requireManager(); err != nil {
		return err
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := lockSchedule(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("schedule_id = ?", id).Delete(&models.Attendance{}).Error; err != nil {
			return errors.Wrap(err, "delete schedule attendance")
		}
		if err := tx.Where("schedule_id = ?", id).Delete(&models.Enrollment{}).Error; err != nil {
			return errors.Wrap(err, "delete schedule enrollments")
		}
		return errors.Wrap(tx.Delete(schedule).Error, "delete schedule")
	})
}

func (in ScheduleInput) requiredOnCreate() error {
	var fields []apperror.FieldError
	missing := func(field string) {
		fields = append(fields, apperror.FieldError{Field: field, Error: "this field is required"})
	}
	if in.CourseID == nil {
		missing("course_id")
	}
	if in.InstructorID == nil {
		missing("instructor_id")
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		missing("title")
	}
	if in.StartTime == nil {
		missing("start_time")
	}
	if in.EndTime == nil {
		missing("end_time")
	}
	if in.Mode == nil {
		missing("mode")
	}
	if in.IsRecurring == nil {
		missing("is_recurring")
	}
	if in.Status == nil {
		missing("status")
	}
	if len(fields) == 0 {
		return nil
	}
	return apperror.NewValidationError(errors.New("validation failed"), fields...)
}

func (in ScheduleInput) applyTo(s *models.Schedule) {
	if in.CourseID != nil {
		s.CourseID = *in.CourseID
	}
	if in.InstructorID != nil {
		s.InstructorID = *in.InstructorID
	}
	if in.Title != nil {
		s.Title = utils.SanitizeString(*in.Title)
	}
	if in.StartTime != nil {
		s.StartTime = in.StartTime.Time.UTC()
	}
	if in.EndTime != nil {
		s.EndTime = in.EndTime.Time.UTC()
	}
	if in.Location != nil {
		s.Location = utils.SanitizeString(*in.Location)
	}
	if in.Mode != nil {
		s.Mode = *in.Mode
	}
	if in.IsRecurring != nil {
		s.IsRecurring = *in.IsRecurring
	}
	if in.MaxEnrollments != nil {
		v := *in.MaxEnrollments
		s.MaxEnrollments = &v
	}
	if in.Status != nil {
		s.Status = *in.Status
	}
}

// validateSchedule checks the merged row, whatever subset was sent.
func validateSchedule(s *models.Schedule) error {
	var fields []apperror.FieldError
	if !s.EndTime.After(s.StartTime) {
		fields = append(fields, apperror.FieldError{Field: "end_time", Error: "end_time must be after start_time"})
	}
	if !s.Mode.Valid() {
		fields = append(fields, apperror.FieldError{Field: "mode", Error: "mode must be one of online, offline, hybrid"})
	}
	if !s.Status.Valid() {
		fields = append(fields, apperror.FieldError{Field: "status", Error: "status must be one of scheduled, completed, cancelled"})
	}
	if len(fields) == 0 {
		return nil
	}
	return apperror.NewValidationError(errors.New("validation failed"), fields...)
}

func ensureScheduleRefs(tx *gorm.DB, courseID, instructorID uint) error {
	var fields []apperror.FieldError
	var n int64
	if err := tx.Model(&models.Course{}).Where("id = ?", courseID).Count(&n).Error; err != nil {
		return errors.Wrap(err, "check course")
	}
	if n == 0 {
		fields = append(fields, apperror.FieldError{Field: "course_id", Error: "course does not exist"})
	}
	if err := tx.Model(&models.Instructor{}).Where("id = ?", instructorID).Count(&n).Error; err != nil {
		return errors.Wrap(err, "check instructor")
	}
	if n == 0 {
		fields = append(fields, apperror.FieldError{Field: "instructor_id", Error: "instructor does not exist"})
	}
	if len(fields) == 0 {
		return nil
	}
	return apperror.NewValidationError(errors.New("validation failed"), fields...)
}
