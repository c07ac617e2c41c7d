package services

import (
	"context"
	"testing"

	"trainhub_go/apperror"
	"trainhub_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseCRUD(t *testing.T) {
	w := newWorld(t)
	svc := NewCourseService(w.db)
	ctx := context.Background()
	_, student := w.student("Sam")

	_, err := svc.Create(ctx, student, CourseInput{Title: ptr("Nope")})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.Create(ctx, w.admin, CourseInput{Description: ptr("no title")})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "title")

	_, err = svc.Create(ctx, w.admin, CourseInput{Title: ptr("Go"), Level: ptr(models.Level("expert"))})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "level")

	course, err := svc.Create(ctx, w.admin, CourseInput{
		Title: ptr(" Go "), Category: ptr("Engineering"), Level: ptr(models.LevelBeginner), DurationHours: ptr(8),
	})
	require.NoError(t, err)
	assert.Equal(t, "Go", course.Title)
	assert.True(t, course.Status)

	updated, err := svc.Update(ctx, w.admin, course.ID, CourseInput{Status: ptr(false), MaxStudents: ptr(30)})
	require.NoError(t, err)
	assert.False(t, updated.Status)
	assert.Equal(t, 30, updated.MaxStudents)
	assert.Equal(t, "Go", updated.Title)

	_, err = svc.Update(ctx, w.admin, course.ID, CourseInput{Title: ptr("")})
	require.ErrorAs(t, err, &verr)

	inactive, err := svc.List(ctx, CourseFilter{Status: ptr(false)})
	require.NoError(t, err)
	require.Len(t, inactive, 1)

	require.NoError(t, svc.Delete(ctx, w.admin, course.ID))
	_, err = svc.Get(ctx, course.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCourseDeleteRefusedWhileScheduled(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Busy", -1)
	svc := NewCourseService(w.db)

	err := svc.Delete(context.Background(), w.admin, schedule.CourseID)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestStudentProfiles(t *testing.T) {
	w := newWorld(t)
	svc := NewRosterService(w.db)
	ctx := context.Background()
	user := w.user("Nia", models.RoleStudent)
	staff := w.user("Ops", models.RoleInstructor)

	_, err := svc.CreateStudent(ctx, w.admin, StudentCreateRequest{UserID: staff.ID})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "user_id")

	student, err := svc.CreateStudent(ctx, w.admin, StudentCreateRequest{UserID: user.ID, Phone: "0800"})
	require.NoError(t, err)
	assert.NotEmpty(t, student.StudentCode)
	assert.Equal(t, "Nia", student.User.Name)

	_, err = svc.CreateStudent(ctx, w.admin, StudentCreateRequest{UserID: user.ID})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	updated, err := svc.UpdateStudent(ctx, w.admin, student.ID, StudentUpdateRequest{
		Name: ptr("Nia K."), Email: ptr("NIA@example.com"), Phone: ptr("0811"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Nia K.", updated.User.Name)
	assert.Equal(t, "nia@example.com", updated.User.Email)
	assert.Equal(t, "0811", updated.Phone)

	other, _ := w.student("Other")
	_, err = svc.UpdateStudent(ctx, w.admin, other.ID, StudentUpdateRequest{StudentCode: ptr(updated.StudentCode)})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = svc.UpdateStudent(ctx, w.admin, other.ID, StudentUpdateRequest{Email: ptr("nia@example.com")})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	me, err := svc.StudentForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, student.ID, me.ID)
	_, err = svc.StudentForUser(ctx, staff.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestDeleteStudentRemovesHistory(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("History", -1)
	alice, aliceIdent := w.student("Alice")
	ctx := context.Background()

	_, err := NewEnrollmentService(w.db, w.locks).OptIn(ctx, aliceIdent, schedule.ID)
	require.NoError(t, err)
	_, err = NewAttendanceService(w.db, w.locks).BulkMark(ctx, w.admin, schedule.ID, BulkMarkRequest{
		Attendance: []AttendanceEntry{{StudentID: alice.ID, Status: models.AttendancePresent}},
	})
	require.NoError(t, err)

	svc := NewRosterService(w.db)
	require.NoError(t, svc.DeleteStudent(ctx, w.admin, alice.ID))

	var n int64
	require.NoError(t, w.db.Model(&models.Enrollment{}).Where("student_id = ?", alice.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, w.db.Model(&models.Attendance{}).Where("student_id = ?", alice.ID).Count(&n).Error)
	assert.Zero(t, n)
	assert.ErrorIs(t, svc.DeleteStudent(ctx, w.admin, alice.ID), apperror.ErrNotFound)
}

func TestInstructorProfiles(t *testing.T) {
	w := newWorld(t)
	svc := NewRosterService(w.db)
	ctx := context.Background()
	user := w.user("Ian", models.RoleInstructor)

	_, err := svc.CreateInstructor(ctx, w.admin, InstructorCreateRequest{UserID: user.ID})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "designation")

	instructor, err := svc.CreateInstructor(ctx, w.admin, InstructorCreateRequest{
		UserID: user.ID, Designation: "Coach", Expertise: []string{" Go ", "", "SQL"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "SQL"}, []string(instructor.Expertise))

	updated, err := svc.UpdateInstructor(ctx, w.admin, instructor.ID, InstructorUpdateRequest{
		Bio: ptr(" Teaches things. "), Expertise: &[]string{"Kubernetes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Teaches things.", updated.Bio)
	assert.Equal(t, []string{"Kubernetes"}, []string(updated.Expertise))

	list, err := svc.ListInstructors(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	schedule := w.schedule("Assigned", -1)
	err = svc.DeleteInstructor(ctx, w.admin, schedule.InstructorID)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	require.NoError(t, svc.DeleteInstructor(ctx, w.admin, instructor.ID))
}
