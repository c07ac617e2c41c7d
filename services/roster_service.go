package services

import (
	"context"
	"strings"

	"trainhub_go/apperror"
	"trainhub_go/models"
	"trainhub_go/utils"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type StudentCreateRequest struct {
	UserID      uint   `json:"user_id" validate:"required"`
	StudentCode string `json:"student_code" validate:"omitempty,max=32"`
	Phone       string `json:"phone" validate:"max=30"`
	Status      *bool  `json:"status"`
}

// StudentUpdateRequest also edits the linked user's contact fields.
type StudentUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone" validate:"omitempty,max=30"`
	Status      *bool   `json:"status"`
	StudentCode *string `json:"student_code" validate:"omitempty,min=1,max=32"`
}

type InstructorCreateRequest struct {
	UserID      uint     `json:"user_id" validate:"required"`
	Designation string   `json:"designation" validate:"required,max=255"`
	Bio         string   `json:"bio"`
	Expertise   []string `json:"expertise" validate:"omitempty,dive,max=100"`
	Status      *bool    `json:"status"`
}

type InstructorUpdateRequest struct {
	Name        *string   `json:"name" validate:"omitempty,min=1,max=255"`
	Email       *string   `json:"email" validate:"omitempty,email"`
	Phone       *string   `json:"phone" validate:"omitempty,max=30"`
	Status      *bool     `json:"status"`
	Designation *string   `json:"designation" validate:"omitempty,min=1,max=255"`
	Bio         *string   `json:"bio"`
	Expertise   *[]string `json:"expertise" validate:"omitempty,dive,max=100"`
}

// RosterService manages student and instructor profiles.
type RosterService struct {
	db *gorm.DB
}

func NewRosterService(db *gorm.DB) *RosterService {
	return &RosterService{db: db}
}

// Students

func (s *RosterService) ListStudents(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := s.db.WithContext(ctx).Preload("User").Order("id ASC").Find(&students).Error; err != nil {
		return nil, errors.Wrap(err, "list students")
	}
	return students, nil
}

func (s *RosterService) GetStudent(ctx context.Context, id uint) (*models.Student, error) {
	var student models.Student
	if err := s.db.WithContext(ctx).Preload("User").First(&student, id).Error; err != nil {
		return nil, notFoundOr(err, "student")
	}
	return &student, nil
}

// StudentForUser resolves the student profile owned by a user.
func (s *RosterService) StudentForUser(ctx context.Context, userID uint) (*models.Student, error) {
	return studentForUser(s.db.WithContext(ctx), userID)
}

func studentForUser(db *gorm.DB, userID uint) (*models.Student, error) {
	var student models.Student
	if err := db.Where("user_id = ?", userID).First(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Forbidden("no student profile for this account")
		}
		return nil, errors.Wrap(err, "load student profile")
	}
	return &student, nil
}

func (s *RosterService) CreateStudent(ctx context.Context, ident Identity, req StudentCreateRequest) (*models.Student, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	req.StudentCode = utils.SanitizeString(req.StudentCode)
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	student := &models.Student{
		UserID:      req.UserID,
		StudentCode: req.StudentCode,
		Phone:       utils.SanitizeString(req.Phone),
		Status:      true,
	}
	if req.Status != nil {
		student.Status = *req.Status
	}
	if student.StudentCode == "" {
		student.StudentCode = utils.CurrentStudentCode(req.UserID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureProfileFree(tx, &models.Student{}, req.UserID, models.RoleStudent); err != nil {
			return err
		}
		if err := ensureStudentCodeFree(tx, student.StudentCode, 0); err != nil {
			return err
		}
		return errors.Wrap(tx.Create(student).Error, "create student")
	})
	if err != nil {
		return nil, err
	}
	return s.GetStudent(ctx, student.ID)
}

func (s *RosterService) UpdateStudent(ctx context.Context, ident Identity, id uint, req StudentUpdateRequest) (*models.Student, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.Student
		if err := tx.Preload("User").First(&student, id).Error; err != nil {
			return notFoundOr(err, "student")
		}
		if err := applyContact(tx, &student.User, req.Name, req.Email, req.Phone, req.Status); err != nil {
			return err
		}
		if req.StudentCode != nil {
			code := utils.SanitizeString(*req.StudentCode)
			if err := ensureStudentCodeFree(tx, code, student.ID); err != nil {
				return err
			}
			student.StudentCode = code
		}
		if req.Phone != nil {
			student.Phone = student.User.Phone
		}
		if req.Status != nil {
			student.Status = *req.Status
		}
		return errors.Wrap(tx.Omit("User").Save(&student).Error, "update student")
	})
	if err != nil {
		return nil, err
	}
	return s.GetStudent(ctx, id)
}

// DeleteStudent also removes the student's enrollments and attendance.
func (s *RosterService) DeleteStudent(ctx context.Context, ident Identity, id uint) error {
	if err := ident.requireManager(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.Student
		if err := tx.First(&student, id).Error; err != nil {
			return notFoundOr(err, "student")
		}
		if err := tx.Where("student_id = ?", id).Delete(&models.Attendance{}).Error; err != nil {
			return errors.Wrap(err, "delete student attendance")
		}
		if err := tx.Where("student_id = ?", id).Delete(&models.Enrollment{}).Error; err != nil {
			return errors.Wrap(err, "delete student enrollments")
		}
		return errors.Wrap(tx.Delete(&student).Error, "delete student")
	})
}

// Instructors

func (s *RosterService) ListInstructors(ctx context.Context) ([]models.Instructor, error) {
	var instructors []models.Instructor
	if err := s.db.WithContext(ctx).Preload("User").Order("id ASC").Find(&instructors).Error; err != nil {
		return nil, errors.Wrap(err, "list instructors")
	}
	return instructors, nil
}

func (s *RosterService) GetInstructor(ctx context.Context, id uint) (*models.Instructor, error) {
	var instructor models.Instructor
	if err := s.db.WithContext(ctx).Preload("User").First(&instructor, id).Error; err != nil {
		return nil, notFoundOr(err, "instructor")
	}
	return &instructor, nil
}

func (s *RosterService) CreateInstructor(ctx context.Context, ident Identity, req InstructorCreateRequest) (*models.Instructor, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	req.Designation = utils.SanitizeString(req.Designation)
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	instructor := &models.Instructor{
		UserID:      req.UserID,
		Designation: req.Designation,
		Bio:         strings.TrimSpace(req.Bio),
		Expertise:   datatypes.JSONSlice[string](utils.SanitizeList(req.Expertise)),
		Status:      true,
	}
	if req.Status != nil {
		instructor.Status = *req.Status
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureProfileFree(tx, &models.Instructor{}, req.UserID, models.RoleInstructor); err != nil {
			return err
		}
		return errors.Wrap(tx.Create(instructor).Error, "create instructor")
	})
	if err != nil {
		return nil, err
	}
	return s.GetInstructor(ctx, instructor.ID)
}

func (s *RosterService) UpdateInstructor(ctx context.Context, ident Identity, id uint, req InstructorUpdateRequest) (*models.Instructor, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var instructor models.Instructor
		if err := tx.Preload("User").First(&instructor, id).Error; err != nil {
			return notFoundOr(err, "instructor")
		}
		if err := applyContact(tx, &instructor.User, req.Name, req.Email, req.Phone, req.Status); err != nil {
			return err
		}
		if req.Designation != nil {
			instructor.Designation = utils.SanitizeString(*req.Designation)
		}
		if req.Bio != nil {
			instructor.Bio = strings.TrimSpace(*req.Bio)
		}
		if req.Expertise != nil {
			instructor.Expertise = datatypes.JSONSlice[string](utils.SanitizeList(*req.Expertise))
		}
		if req.Status != nil {
			instructor.Status = *req.Status
		}
		return errors.Wrap(tx.Omit("User").Save(&instructor).Error, "update instructor")
	})
	if err != nil {
		return nil, err
	}
	return s.GetInstructor(ctx, id)
}

// DeleteInstructor refuses while the instructor still teaches schedules.
func (s *RosterService) DeleteInstructor(ctx context.Context, ident Identity, id uint) error {
	if err := ident.requireManager(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var instructor models.Instructor
		if err := tx.First(&instructor, id).Error; err != nil {
			return notFoundOr(err, "instructor")
		}
		var n int64
		if err := tx.Model(&models.Schedule{}).Where("instructor_id = ?", id).Count(&n).Error; err != nil {
			return errors.Wrap(err, "count instructor schedules")
		}
		if n > 0 {
			return apperror.Conflict("instructor is still assigned to trainings")
		}
		return errors.Wrap(tx.Delete(&instructor).Error, "delete instructor")
	})
}

// applyContact copies contact edits onto the linked user row.
func applyContact(tx *gorm.DB, user *models.User, name, email, phone *string, status *bool) error {
	if name == nil && email == nil && phone == nil && status == nil {
		return nil
	}
	if name != nil {
		user.Name = utils.SanitizeString(*name)
	}
	if email != nil {
		normalized := utils.NormalizeEmail(*email)
		if err := ensureEmailFree(tx, normalized, user.ID); err != nil {
			return err
		}
		user.Email = normalized
	}
	if phone != nil {
		user.Phone = utils.SanitizeString(*phone)
	}
	if status != nil {
		user.Status = *status
	}
	return errors.Wrap(tx.Model(user).Select("name", "email", "phone", "status").Updates(user).Error, "update user contact")
}

func ensureProfileFree(tx *gorm.DB, profile interface{}, userID uint, role models.Role) error {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Validation("user_id", "user does not exist")
		}
		return errors.Wrap(err, "load user")
	}
	if user.Role != role {
		return apperror.Validation("user_id", "user must have the "+string(role)+" role")
	}
	var n int64
	if err := tx.Model(profile).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return errors.Wrap(err, "check existing profile")
	}
	if n > 0 {
		return apperror.Conflict("user already has a " + string(role) + " profile")
	}
	return nil
}

func ensureStudentCodeFree(tx *gorm.DB, code string, exceptID uint) error {
	var n int64
	q := tx.Model(&models.Student{}).Where("student_code = ?", code)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return errors.Wrap(err, "check student code")
	}
	if n > 0 {
		return apperror.Conflict("student code has already been taken")
	}
	return nil
}
