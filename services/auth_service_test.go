package services

import (
	"context"
	"testing"
	"time"

	"trainhub_go/apperror"
	"trainhub_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesRoleProfile(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db)
	ctx := context.Background()

	student, err := svc.Register(ctx, RegisterRequest{
		Name: " Alice ", Email: "Alice@Example.com", Password: "secret1", Role: models.RoleStudent,
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", student.Name)
	assert.Equal(t, "alice@example.com", student.Email)
	assert.NotEqual(t, "secret1", student.Password)
	require.NotNil(t, student.Student)
	assert.Regexp(t, `^STU\d{4}\d{5}$`, student.Student.StudentCode)

	root := Identity{UserID: 99, Role: models.RoleAdmin}
	instructor, err := svc.CreateAccount(ctx, root, RegisterRequest{
		Name: "Ida", Email: "ida@example.com", Password: "secret1", Role: models.RoleInstructor,
	})
	require.NoError(t, err)
	require.NotNil(t, instructor.Instructor)
	assert.Equal(t, defaultDesignation, instructor.Instructor.Designation)

	admin, err := svc.CreateAccount(ctx, root, RegisterRequest{
		Name: "Root", Email: "root@example.com", Password: "secret1", Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Nil(t, admin.Student)
	assert.Nil(t, admin.Instructor)

	_, err = svc.Register(ctx, RegisterRequest{
		Name: "Dup", Email: "ALICE@example.com", Password: "secret1", Role: models.RoleStudent,
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = svc.Register(ctx, RegisterRequest{Name: "Bad", Email: "nope", Password: "1", Role: "owner"})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := verr.FieldMap()
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "role")
}

func TestSelfRegistrationIsStudentOnly(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db)
	ctx := context.Background()

	for _, role := range []models.Role{models.RoleAdmin, models.RoleInstructor} {
		_, err := svc.Register(ctx, RegisterRequest{
			Name: "Mallory", Email: "mallory@example.com", Password: "secret1", Role: role,
		})
		var verr *apperror.ValidationError
		require.ErrorAs(t, err, &verr, role)
		assert.Contains(t, verr.FieldMap(), "role")
	}

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users)

	user, err := svc.Register(ctx, RegisterRequest{Name: "Sia", Email: "sia@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	require.NotNil(t, user.Student)

	_, err = svc.CreateAccount(ctx, Identity{UserID: user.ID, Role: models.RoleInstructor}, RegisterRequest{
		Name: "Ops", Email: "ops@example.com", Password: "secret1", Role: models.RoleAdmin,
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestLogin(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "secret1", Role: models.RoleStudent})
	require.NoError(t, err)

	got, err := svc.Login(ctx, LoginRequest{Email: " BOB@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, wrongPassword := svc.Login(ctx, LoginRequest{Email: "bob@example.com", Password: "nope"})
	_, unknownEmail := svc.Login(ctx, LoginRequest{Email: "eve@example.com", Password: "secret1"})
	require.Error(t, wrongPassword)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("status", false).Error)
	_, err = svc.Login(ctx, LoginRequest{Email: "bob@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.ActiveUser(ctx, user.ID)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestTokenLifecycle(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour, NewMemoryRevocationStore())
	ctx := context.Background()
	user := &models.User{BaseModel: models.BaseModel{ID: 7}, Email: "a@example.com", Role: models.RoleInstructor}

	token, issued, err := svc.Issue(user)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	claims, err := svc.Parse(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 7, Role: models.RoleInstructor}, claims.Identity())

	require.NoError(t, svc.Revoke(ctx, claims))
	_, err = svc.Parse(ctx, token)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	other := NewTokenService("other-secret", time.Hour, nil)
	fresh, _, err := svc.Issue(user)
	require.NoError(t, err)
	_, err = other.Parse(ctx, fresh)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute, nil)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := svc.Issue(&models.User{BaseModel: models.BaseModel{ID: 1}, Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = svc.Parse(context.Background(), token)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestMemoryRevocationStoreForgetsExpiredEntries(t *testing.T) {
	store := NewMemoryRevocationStore()
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "old", time.Now().Add(-time.Second)))
	require.NoError(t, store.Revoke(ctx, "live", time.Now().Add(time.Hour)))

	revoked, err := store.IsRevoked(ctx, "old")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = store.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
}
