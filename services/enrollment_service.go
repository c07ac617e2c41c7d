package services

import (
	"context"
	"strings"
	"time"

	"trainhub_go/apperror"
	"trainhub_go/models"
	"trainhub_go/observability"
	"trainhub_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentCreateRequest struct {
	StudentID  uint                     `json:"student_id" validate:"required"`
	ScheduleID uint                     `json:"training_schedule_id" validate:"required"`
	Status     *models.EnrollmentStatus `json:"status" validate:"omitempty,enum"`
	EnrolledAt *utils.FlexTime          `json:"enrolled_at"`
	Notes      string                   `json:"notes"`
}

type EnrollmentUpdateRequest struct {
	StudentID   *uint                    `json:"student_id" validate:"omitempty,min=1"`
	ScheduleID  *uint                    `json:"training_schedule_id" validate:"omitempty,min=1"`
	Status      *models.EnrollmentStatus `json:"status" validate:"omitempty,enum"`
	EnrolledAt  *utils.FlexTime          `json:"enrolled_at"`
	CompletedAt *utils.FlexTime          `json:"completed_at"`
	Notes       *string                  `json:"notes"`
}

type EnrollmentFilter struct {
	Status     string
	ScheduleID uint
	StudentID  uint
}

// EnrollmentService owns the enrollment state machine. Every write that
// can change a schedule's active count runs under that schedule's
// KeyedLocker entry and a row lock on the schedule.
type EnrollmentService struct {
	db    *gorm.DB
	locks *KeyedLocker
	now   func() time.Time
}

func NewEnrollmentService(db *gorm.DB, locks *KeyedLocker) *EnrollmentService {
	if locks == nil {
		locks = NewKeyedLocker()
	}
	return &EnrollmentService{db: db, locks: locks, now: time.Now}
}

// OptIn enrolls the calling student into a schedule.
func (s *EnrollmentService) OptIn(ctx context.Context, ident Identity, scheduleID uint) (enrollment *models.Enrollment, err error) {
	defer func() {
		result := "enrolled"
		if err != nil {
			result = apperror.Code(err)
		}
		observability.OptInResults.WithLabelValues(result).Inc()
	}()

	if !ident.IsStudent() {
		return nil, apperror.Forbidden("only students can opt in")
	}
	student, err := studentForUser(s.db.WithContext(ctx), ident.UserID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	row := &models.Enrollment{
		StudentID:  student.ID,
		ScheduleID: scheduleID,
		Status:     models.EnrollmentEnrolled,
		EnrolledAt: s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := lockSchedule(tx, scheduleID)
		if err != nil {
			return err
		}
		if schedule.Status != models.ScheduleScheduled {
			return apperror.Conflict("training is " + string(schedule.Status) + " and no longer accepts enrollments")
		}
		if err := ensureEnrollable(tx, schedule, student.ID, 0); err != nil {
			return err
		}
		return errors.Wrap(tx.Omit(clause.Associations).Create(row).Error, "create enrollment")
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"student_id":  student.ID,
		"schedule_id": scheduleID,
	}).Info("Student opted in")
	return s.Get(ctx, ident, row.ID)
}

// OptOut cancels the caller's active enrollment and keeps the row as history.
func (s *EnrollmentService) OptOut(ctx context.Context, ident Identity, scheduleID uint) (*models.Enrollment, error) {
	if !ident.IsStudent() {
		return nil, apperror.Forbidden("only students can opt out")
	}
	student, err := studentForUser(s.db.WithContext(ctx), ident.UserID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	var row models.Enrollment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockSchedule(tx, scheduleID); err != nil {
			return err
		}
		err := tx.Where("student_id = ? AND schedule_id = ? AND status = ?", student.ID, scheduleID, models.EnrollmentEnrolled).
			First(&row).Error
		if err != nil {
			return notFoundOr(err, "enrollment")
		}
		row.Status = models.EnrollmentCancelled
		return errors.Wrap(tx.Omit(clause.Associations).Save(&row).Error, "cancel enrollment")
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns enrollments with student and schedule details. Students
// only ever see their own rows.
func (s *EnrollmentService) List(ctx context.Context, ident Identity, f EnrollmentFilter) ([]models.Enrollment, error) {
	q := s.db.WithContext(ctx).Model(&models.Enrollment{}).
		Preload("Student.User").
		Preload("Schedule.Course").
		Preload("Schedule.Instructor.User")
	if ident.IsStudent() {
		student, err := studentForUser(s.db.WithContext(ctx), ident.UserID)
		if err != nil {
			return nil, err
		}
		q = q.Where("student_id = ?", student.ID)
	} else if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ScheduleID != 0 {
		q = q.Where("schedule_id = ?", f.ScheduleID)
	}

	var rows []models.Enrollment
	if err := q.Order("enrolled_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list enrollments")
	}
	return rows, nil
}

func (s *EnrollmentService) Get(ctx context.Context, ident Identity, id uint) (*models.Enrollment, error) {
	var row models.Enrollment
	err := s.db.WithContext(ctx).
		Preload("Student.User").
		Preload("Schedule.Course").
		Preload("Schedule.Instructor.User").
		First(&row, id).Error
	if err != nil {
		return nil, notFoundOr(err, "enrollment")
	}
	if ident.IsStudent() {
		student, err := studentForUser(s.db.WithContext(ctx), ident.UserID)
		if err != nil {
			return nil, err
		}
		if row.StudentID != student.ID {
			return nil, apperror.NotFound("enrollment")
		}
	}
	return &row, nil
}

// Create is the admin path. It applies the same capacity and uniqueness
// checks as OptIn but may target any schedule status.
func (s *EnrollmentService) Create(ctx context.Context, ident Identity, req EnrollmentCreateRequest) (*models.Enrollment, error) {
	if err := ident.requireAdmin(); err != nil {
		return nil, err
	}
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}
	if req.Status != nil && *req.Status != models.EnrollmentEnrolled {
		return nil, apperror.Validation("status", "new enrollments start as enrolled")
	}

	unlock := s.locks.Lock(req.ScheduleID)
	defer unlock()

	row := &models.Enrollment{
		StudentID:  req.StudentID,
		ScheduleID: req.ScheduleID,
		Status:     models.EnrollmentEnrolled,
		EnrolledAt: s.now().UTC(),
		Notes:      strings.TrimSpace(req.Notes),
	}
	if req.EnrolledAt != nil {
		row.EnrolledAt = req.EnrolledAt.Time.UTC()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := lockScheduleRef(tx, req.ScheduleID)
		if err != nil {
			return err
		}
		if err := ensureStudentRef(tx, req.StudentID); err != nil {
			return err
		}
		if err := ensureEnrollable(tx, schedule, req.StudentID, 0); err != nil {
			return err
		}
		return errors.Wrap(tx.Omit(clause.Associations).Create(row).Error, "create enrollment")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, ident, row.ID)
}

// Update applies a partial edit. Status changes follow the state
// machine, and an active row that moves to another student or schedule
// is re-checked for capacity and uniqueness. Completed and cancelled rows
// stay where they are.
func (s *EnrollmentService) Update(ctx context.Context, ident Identity, id uint, req EnrollmentUpdateRequest) (*models.Enrollment, error) {
	if err := ident.requireAdmin(); err != nil {
		return nil, err
	}
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	var current models.Enrollment
	if err := s.db.WithContext(ctx).First(&current, id).Error; err != nil {
		return nil, notFoundOr(err, "enrollment")
	}
	keys := []uint{current.ScheduleID}
	if req.ScheduleID != nil {
		keys = append(keys, *req.ScheduleID)
	}
	unlock := s.locks.LockAll(keys...)
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Enrollment
		if err := tx.First(&row, id).Error; err != nil {
			return notFoundOr(err, "enrollment")
		}

		if req.Status != nil && !row.Status.CanTransitionTo(*req.Status) {
			return apperror.ErrInvalidTransition
		}
		moved := (req.StudentID != nil && *req.StudentID != row.StudentID) ||
			(req.ScheduleID != nil && *req.ScheduleID != row.ScheduleID)
		if moved && row.Status.Terminal() {
			return apperror.ErrInvalidTransition
		}

		if req.StudentID != nil {
			row.StudentID = *req.StudentID
		}
		if req.ScheduleID != nil {
			row.ScheduleID = *req.ScheduleID
		}
		if req.Status != nil {
			row.Status = *req.Status
		}
		if req.EnrolledAt != nil {
			row.EnrolledAt = req.EnrolledAt.Time.UTC()
		}
		if req.CompletedAt != nil {
			row.CompletedAt = req.CompletedAt.Ptr()
		}
		if req.Notes != nil {
			row.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.CompletedAt != nil && row.Status != models.EnrollmentCompleted {
			return apperror.Validation("completed_at", "completed_at is only set on completed enrollments")
		}
		if row.Status == models.EnrollmentCompleted && row.CompletedAt == nil {
			now := s.now().UTC()
			row.CompletedAt = &now
		}
		if row.CompletedAt != nil {
			utc := row.CompletedAt.UTC()
			row.CompletedAt = &utc
			if utc.Before(row.EnrolledAt) {
				return apperror.Validation("completed_at", "completed_at cannot be before enrolled_at")
			}
		}

		if moved {
			schedule, err := lockScheduleRef(tx, row.ScheduleID)
			if err != nil {
				return err
			}
			if err := ensureStudentRef(tx, row.StudentID); err != nil {
				return err
			}
			if row.Status == models.EnrollmentEnrolled {
				if err := ensureEnrollable(tx, schedule, row.StudentID, row.ID); err != nil {
					return err
				}
			}
		}
		return errors.Wrap(tx.Omit(clause.Associations).Save(&row).Error, "update enrollment")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, ident, id)
}

func (s *EnrollmentService) Delete(ctx context.Context, ident Identity, id uint) error {
	if err := ident.requireAdmin(); err != nil {
		return err
	}
	var row models.Enrollment
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return notFoundOr(err, "enrollment")
	}
	unlock := s.locks.Lock(row.ScheduleID)
	defer unlock()

	res := s.db.WithContext(ctx).Delete(&models.Enrollment{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete enrollment")
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("enrollment")
	}
	return nil
}

// lockSchedule loads a schedule with a row lock held until tx ends.
// sqlite has no FOR UPDATE; there the single connection serializes writers.
func lockSchedule(tx *gorm.DB, id uint) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&schedule, id).Error; err != nil {
		return nil, notFoundOr(err, "schedule")
	}
	return &schedule, nil
}

// lockScheduleRef is lockSchedule for a schedule named in a request body.
func lockScheduleRef(tx *gorm.DB, id uint) (*models.Schedule, error) {
	schedule, err := lockSchedule(tx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Validation("training_schedule_id", "training schedule does not exist")
	}
	return schedule, err
}

func ensureStudentRef(tx *gorm.DB, studentID uint) error {
	var n int64
	if err := tx.Model(&models.Student{}).Where("id = ?", studentID).Count(&n).Error; err != nil {
		return errors.Wrap(err, "check student")
	}
	if n == 0 {
		return apperror.Validation("student_id", "student does not exist")
	}
	return nil
}

func countActive(tx *gorm.DB, scheduleID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.Enrollment{}).
		Where("schedule_id = ? AND status = ?", scheduleID, models.EnrollmentEnrolled).
		Count(&n).Error
	return n, errors.Wrap(err, "count active enrollments")
}

// ensureEnrollable checks uniqueness and capacity for one more active
// row, ignoring exceptID when an existing row is being moved.
func ensureEnrollable(tx *gorm.DB, schedule *models.Schedule, studentID, exceptID uint) error {
	q := tx.Model(&models.Enrollment{}).
		Where("student_id = ? AND schedule_id = ? AND status = ?", studentID, schedule.ID, models.EnrollmentEnrolled)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var dup int64
	if err := q.Count(&dup).Error; err != nil {
		return errors.Wrap(err, "check existing enrollment")
	}
	if dup > 0 {
		return apperror.ErrAlreadyEnrolled
	}

	active := tx.Model(&models.Enrollment{}).
		Where("schedule_id = ? AND status = ?", schedule.ID, models.EnrollmentEnrolled)
	if exceptID != 0 {
		active = active.Where("id <> ?", exceptID)
	}
	var n int64
	if err := active.Count(&n).Error; err != nil {
		return errors.Wrap(err, "count active enrollments")
	}
	if !schedule.HasCapacityFor(n) {
		return errors.Wrapf(apperror.ErrCapacityExceeded, "training %d is full", schedule.ID)
	}
	return nil
}
