package services

import (
	"context"

	"trainhub_go/apperror"
	"trainhub_go/models"
	"trainhub_go/utils"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	Name     string      `json:"name" validate:"required,max=255"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6"`
	Phone    string      `json:"phone" validate:"max=30"`
	Role     models.Role `json:"role" validate:"required,enum"`
	Status   *bool       `json:"status"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

const (
	defaultDesignation = "Instructor"
	defaultBio         = "Bio not set yet."
)

type AuthService struct {
	db *gorm.DB
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{db: db}
}

// Register is public sign-up. Only student accounts can be created this
// way; an empty role means student.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	if err := s.validateAccount(&req); err != nil {
		return nil, err
	}
	if req.Role != models.RoleStudent {
		return nil, apperror.Validation("role", "Only student accounts can self-register.")
	}
	return s.createAccount(ctx, req)
}

// CreateAccount lets an admin create an account with any role.
func (s *AuthService) CreateAccount(ctx context.Context, ident Identity, req RegisterRequest) (*models.User, error) {
	if err := ident.requireAdmin(); err != nil {
		return nil, err
	}
	if err := s.validateAccount(&req); err != nil {
		return nil, err
	}
	return s.createAccount(ctx, req)
}

func (s *AuthService) validateAccount(req *RegisterRequest) error {
	req.Name = utils.SanitizeString(req.Name)
	req.Email = utils.NormalizeEmail(req.Email)
	return utils.Validate(req)
}

// createAccount stores the user and, depending on role, its roster
// profile in one transaction.
func (s *AuthService) createAccount(ctx context.Context, req RegisterRequest) (*models.User, error) {

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	status := true
	if req.Status != nil {
		status = *req.Status
	}
	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: hashed,
		Role:     req.Role,
		Phone:    utils.SanitizeString(req.Phone),
		Status:   status,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureEmailFree(tx, user.Email, 0); err != nil {
			return err
		}
		if err := tx.Create(user).Error; err != nil {
			return errors.Wrap(err, "create user")
		}
		switch user.Role {
		case models.RoleStudent:
			student := &models.Student{
				UserID:      user.ID,
				StudentCode: utils.CurrentStudentCode(user.ID),
				Phone:       user.Phone,
				Status:      true,
			}
			if err := tx.Create(student).Error; err != nil {
				return errors.Wrap(err, "create student profile")
			}
			user.Student = student
		case models.RoleInstructor:
			instructor := &models.Instructor{
				UserID:      user.ID,
				Designation: defaultDesignation,
				Bio:         defaultBio,
				Expertise:   datatypes.JSONSlice[string]{},
				Status:      true,
			}
			if err := tx.Create(instructor).Error; err != nil {
				return errors.Wrap(err, "create instructor profile")
			}
			user.Instructor = instructor
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials. Unknown email and wrong password produce the
// same field error so accounts cannot be enumerated.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*models.User, error) {
	req.Email = utils.NormalizeEmail(req.Email)
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	invalid := apperror.Validation("email", "Invalid email or password.")
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid
		}
		return nil, errors.Wrap(err, "load user")
	}
	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		return nil, invalid
	}
	if !user.Status {
		return nil, apperror.Unauthorized("account is inactive")
	}
	return &user, nil
}

// ActiveUser loads the user behind an identity, failing if it was
// removed or deactivated after the token was issued.
func (s *AuthService) ActiveUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Unauthorized("user not found or inactive")
		}
		return nil, errors.Wrap(err, "load user")
	}
	if !user.Status {
		return nil, apperror.Unauthorized("user not found or inactive")
	}
	return &user, nil
}

func ensureEmailFree(tx *gorm.DB, email string, exceptUserID uint) error {
	var count int64
	q := tx.Model(&models.User{}).Where("email = ?", email)
	if exceptUserID != 0 {
		q = q.Where("id <> ?", exceptUserID)
	}
	if err := q.Count(&count).Error; err != nil {
		return errors.Wrap(err, "check email")
	}
	if count > 0 {
		return apperror.Conflict("email has already been taken")
	}
	return nil
}
