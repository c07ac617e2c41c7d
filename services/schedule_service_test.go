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

func scheduleInput(courseID, instructorID uint, start, end time.Time) ScheduleInput {
	return ScheduleInput{
		CourseID:     ptr(courseID),
		InstructorID: ptr(instructorID),
		Title:        ptr("  Intro Cohort "),
		StartTime:    flex(start),
		EndTime:      flex(end),
		Mode:         ptr(models.ModeHybrid),
		IsRecurring:  ptr(false),
		Status:       ptr(models.ScheduleScheduled),
	}
}

func TestCreateSchedule(t *testing.T) {
	w := newWorld(t)
	instructor, instructorIdent := w.instructor("Ida")
	course := w.course("Go")
	svc := NewScheduleService(w.db, w.locks)
	ctx := context.Background()
	start := time.Date(2026, 11, 2, 9, 0, 0, 0, time.FixedZone("ICT", 7*3600))

	in := scheduleInput(course.ID, instructor.ID, start, start.Add(3*time.Hour))
	in.MaxEnrollments = ptr(12)
	created, err := svc.Create(ctx, instructorIdent, in)
	require.NoError(t, err)
	assert.Equal(t, "Intro Cohort", created.Title)
	assert.Equal(t, "Go", created.Course.Title)
	assert.Equal(t, "Ida", created.Instructor.User.Name)
	assert.True(t, created.StartTime.Equal(start))
	require.NotNil(t, created.MaxEnrollments)
	assert.Equal(t, 12, *created.MaxEnrollments)
	assert.Empty(t, created.Enrollments)

	_, studentIdent := w.student("Sam")
	_, err = svc.Create(ctx, studentIdent, in)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestCreateScheduleValidation(t *testing.T) {
	w := newWorld(t)
	instructor, _ := w.instructor("Ida")
	course := w.course("Go")
	svc := NewScheduleService(w.db, w.locks)
	ctx := context.Background()
	start := time.Now().UTC().Add(48 * time.Hour)

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Create(ctx, w.admin, ScheduleInput{Title: ptr("x")})
		var verr *apperror.ValidationError
		require.ErrorAs(t, err, &verr)
		fields := verr.FieldMap()
		for _, f := range []string{"course_id", "instructor_id", "start_time", "end_time", "mode", "is_recurring", "status"} {
			assert.Contains(t, fields, f)
		}
		assert.NotContains(t, fields, "title")
	})

	t.Run("end equal to start", func(t *testing.T) {
		_, err := svc.Create(ctx, w.admin, scheduleInput(course.ID, instructor.ID, start, start))
		var verr *apperror.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMap(), "end_time")
	})

	t.Run("unknown references", func(t *testing.T) {
		_, err := svc.Create(ctx, w.admin, scheduleInput(999, 998, start, start.Add(time.Hour)))
		var verr *apperror.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMap(), "course_id")
		assert.Contains(t, verr.FieldMap(), "instructor_id")
	})

	t.Run("bad mode", func(t *testing.T) {
		in := scheduleInput(course.ID, instructor.ID, start, start.Add(time.Hour))
		in.Mode = ptr(models.Mode("classroom"))
		_, err := svc.Create(ctx, w.admin, in)
		var verr *apperror.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.FieldMap(), "mode")
	})

	var n int64
	require.NoError(t, w.db.Model(&models.Schedule{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUpdateScheduleMergesBeforeValidating(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Merge", -1)
	svc := NewScheduleService(w.db, w.locks)
	ctx := context.Background()

	_, err := svc.Update(ctx, w.admin, schedule.ID, ScheduleInput{EndTime: flex(schedule.StartTime.Add(-time.Minute))})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "end_time")

	_, err = svc.Update(ctx, w.admin, schedule.ID, ScheduleInput{Title: ptr("   ")})
	require.ErrorAs(t, err, &verr)

	updated, err := svc.Update(ctx, w.admin, schedule.ID, ScheduleInput{Location: ptr("Room 4"), Status: ptr(models.ScheduleCancelled)})
	require.NoError(t, err)
	assert.Equal(t, "Room 4", updated.Location)
	assert.Equal(t, models.ScheduleCancelled, updated.Status)
	assert.Equal(t, "Merge", updated.Title)

	_, err = svc.Update(ctx, w.admin, 4040, ScheduleInput{Location: ptr("x")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateScheduleCannotShrinkBelowActiveEnrollments(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Shrink", 5)
	enrollments := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		_, ident := w.student(name)
		_, err := enrollments.OptIn(ctx, ident, schedule.ID)
		require.NoError(t, err)
	}

	svc := NewScheduleService(w.db, w.locks)
	_, err := svc.Update(ctx, w.admin, schedule.ID, ScheduleInput{MaxEnrollments: ptr(2)})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	updated, err := svc.Update(ctx, w.admin, schedule.ID, ScheduleInput{MaxEnrollments: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, *updated.MaxEnrollments)
	assert.Len(t, updated.Enrollments, 3)
}

func TestDeleteScheduleCascades(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Cascade", -1)
	keep := w.schedule("Keep", -1)
	alice, aliceIdent := w.student("Alice")
	ctx := context.Background()

	enrollments := NewEnrollmentService(w.db, w.locks)
	_, err := enrollments.OptIn(ctx, aliceIdent, schedule.ID)
	require.NoError(t, err)
	_, err = enrollments.OptIn(ctx, aliceIdent, keep.ID)
	require.NoError(t, err)

	attendance := NewAttendanceService(w.db, w.locks)
	res, err := attendance.BulkMark(ctx, w.admin, schedule.ID, BulkMarkRequest{Attendance: []AttendanceEntry{
		{StudentID: alice.ID, Status: models.AttendancePresent},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Saved)

	svc := NewScheduleService(w.db, w.locks)
	require.NoError(t, svc.Delete(ctx, w.admin, schedule.ID))

	_, err = svc.Get(ctx, schedule.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	var n int64
	require.NoError(t, w.db.Model(&models.Enrollment{}).Where("schedule_id = ?", schedule.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, w.db.Model(&models.Attendance{}).Where("schedule_id = ?", schedule.ID).Count(&n).Error)
	assert.Zero(t, n)
	assert.EqualValues(t, 1, w.activeCount(keep.ID))

	assert.ErrorIs(t, svc.Delete(ctx, w.admin, schedule.ID), apperror.ErrNotFound)
}

func TestListSchedulesFilters(t *testing.T) {
	w := newWorld(t)
	future := w.schedule("Future", -1)
	past := w.schedule("Past", -1)
	require.NoError(t, w.db.Model(past).Updates(map[string]interface{}{
		"start_time": time.Now().UTC().Add(-72 * time.Hour),
		"end_time":   time.Now().UTC().Add(-70 * time.Hour),
		"status":     models.ScheduleCompleted,
	}).Error)
	svc := NewScheduleService(w.db, w.locks)
	ctx := context.Background()

	all, err := svc.List(ctx, ScheduleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, past.ID, all[0].ID, "ordered by start_time")

	upcoming, err := svc.List(ctx, ScheduleFilter{Upcoming: true})
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, future.ID, upcoming[0].ID)

	completed, err := svc.List(ctx, ScheduleFilter{Status: string(models.ScheduleCompleted)})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, past.ID, completed[0].ID)

	byCourse, err := svc.List(ctx, ScheduleFilter{CourseID: future.CourseID})
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.NotEmpty(t, byCourse[0].Course.Title)
}
