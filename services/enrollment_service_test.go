package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"trainhub_go/apperror"
	"trainhub_go/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestOptInRespectsCapacityUnderConcurrency(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Go Basics", 3)
	svc := NewEnrollmentService(w.db, w.locks)

	const students = 10
	idents := make([]Identity, students)
	for i := range idents {
		_, idents[i] = w.student(fmt.Sprintf("Student %d", i))
	}

	var enrolled, full atomic.Int32
	var g errgroup.Group
	for _, ident := range idents {
		ident := ident
		g.Go(func() error {
			_, err := svc.OptIn(context.Background(), ident, schedule.ID)
			switch {
			case err == nil:
				enrolled.Add(1)
			case errors.Is(err, apperror.ErrCapacityExceeded):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 3, enrolled.Load())
	assert.EqualValues(t, students-3, full.Load())
	assert.EqualValues(t, 3, w.activeCount(schedule.ID))
	assert.Zero(t, w.locks.Len())
}

func TestOptInRejectsDuplicateAndAllowsReOptInAfterCancel(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Safety", -1)
	_, ident := w.student("Alice")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	first, err := svc.OptIn(ctx, ident, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentEnrolled, first.Status)
	assert.Equal(t, "Safety", first.Schedule.Title)

	_, err = svc.OptIn(ctx, ident, schedule.ID)
	assert.ErrorIs(t, err, apperror.ErrAlreadyEnrolled)
	assert.Equal(t, "already_enrolled", apperror.Code(err))

	cancelled, err := svc.OptOut(ctx, ident, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCancelled, cancelled.Status)

	_, err = svc.OptOut(ctx, ident, schedule.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	again, err := svc.OptIn(ctx, ident, schedule.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, again.ID)

	var rows int64
	require.NoError(t, w.db.Model(&models.Enrollment{}).Where("schedule_id = ?", schedule.ID).Count(&rows).Error)
	assert.EqualValues(t, 2, rows)
	assert.EqualValues(t, 1, w.activeCount(schedule.ID))
}

func TestOptInGuards(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Closed", -1)
	_, student := w.student("Bob")
	_, instructor := w.instructor("Ida")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	_, err := svc.OptIn(ctx, instructor, schedule.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.OptIn(ctx, student, 9999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, w.db.Model(schedule).Update("status", models.ScheduleCancelled).Error)
	_, err = svc.OptIn(ctx, student, schedule.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestZeroCapacityIsClosed(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Full house", 0)
	_, ident := w.student("Carla")

	_, err := NewEnrollmentService(w.db, w.locks).OptIn(context.Background(), ident, schedule.ID)
	assert.ErrorIs(t, err, apperror.ErrCapacityExceeded)
	assert.Equal(t, "capacity_exceeded", apperror.Code(err))
}

func TestAdminCreateValidatesReferencesAndCapacity(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Admin path", 1)
	alice, _ := w.student("Alice")
	bob, _ := w.student("Bob")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	_, err := svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: alice.ID, ScheduleID: 4242})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "training_schedule_id")

	_, err = svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: 4242, ScheduleID: schedule.ID})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "student_id")

	completed := models.EnrollmentCompleted
	_, err = svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: alice.ID, ScheduleID: schedule.ID, Status: &completed})
	require.ErrorAs(t, err, &verr)

	row, err := svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: alice.ID, ScheduleID: schedule.ID, Notes: "  walk-in "})
	require.NoError(t, err)
	assert.Equal(t, "walk-in", row.Notes)

	_, err = svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: bob.ID, ScheduleID: schedule.ID})
	assert.ErrorIs(t, err, apperror.ErrCapacityExceeded)

	_, studentIdent := w.student("Eve")
	_, err = svc.Create(ctx, studentIdent, EnrollmentCreateRequest{StudentID: bob.ID, ScheduleID: schedule.ID})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestUpdateFollowsStateMachine(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Transitions", -1)
	alice, _ := w.student("Alice")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	row, err := svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: alice.ID, ScheduleID: schedule.ID})
	require.NoError(t, err)

	done, err := svc.Update(ctx, w.admin, row.ID, EnrollmentUpdateRequest{Status: ptr(models.EnrollmentCompleted)})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(done.EnrolledAt))

	_, err = svc.Update(ctx, w.admin, row.ID, EnrollmentUpdateRequest{Status: ptr(models.EnrollmentEnrolled)})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	assert.Equal(t, "invalid_transition", apperror.Code(err))

	notes, err := svc.Update(ctx, w.admin, row.ID, EnrollmentUpdateRequest{Notes: ptr("certificate sent")})
	require.NoError(t, err)
	assert.Equal(t, "certificate sent", notes.Notes)
	assert.Equal(t, models.EnrollmentCompleted, notes.Status)
}

func TestUpdateRejectsCompletionBeforeEnrollment(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Timeline", -1)
	alice, _ := w.student("Alice")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	enrolledAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	row, err := svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: alice.ID, ScheduleID: schedule.ID, EnrolledAt: flex(enrolledAt)})
	require.NoError(t, err)

	_, err = svc.Update(ctx, w.admin, row.ID, EnrollmentUpdateRequest{
		Status:      ptr(models.EnrollmentCompleted),
		CompletedAt: flex(enrolledAt.Add(-time.Hour)),
	})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "completed_at")
}

func TestUpdateMovingRowRechecksTarget(t *testing.T) {
	w := newWorld(t)
	from := w.schedule("From", -1)
	to := w.schedule("To", 1)
	alice, _ := w.student("Alice")
	bob, _ := w.student("Bob")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	aliceRow, err := svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: alice.ID, ScheduleID: from.ID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: bob.ID, ScheduleID: to.ID})
	require.NoError(t, err)

	_, err = svc.Update(ctx, w.admin, aliceRow.ID, EnrollmentUpdateRequest{ScheduleID: ptr(to.ID)})
	assert.ErrorIs(t, err, apperror.ErrCapacityExceeded)

	// Changing the student on a full schedule does not count the row twice.
	bobRow, err := svc.List(ctx, w.admin, EnrollmentFilter{ScheduleID: to.ID})
	require.NoError(t, err)
	require.Len(t, bobRow, 1)
	moved, err := svc.Update(ctx, w.admin, bobRow[0].ID, EnrollmentUpdateRequest{StudentID: ptr(alice.ID)})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, moved.StudentID)

	// Alice is now active on both schedules; pointing the first row at
	// the second would duplicate her.
	_, err = svc.Update(ctx, w.admin, aliceRow.ID, EnrollmentUpdateRequest{ScheduleID: ptr(to.ID)})
	assert.ErrorIs(t, err, apperror.ErrAlreadyEnrolled)
}

func TestUpdateKeepsFinishedRowsInPlace(t *testing.T) {
	w := newWorld(t)
	from := w.schedule("Finished", -1)
	to := w.schedule("Elsewhere", -1)
	alice, _ := w.student("Alice")
	bob, _ := w.student("Bob")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	active, err := svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: bob.ID, ScheduleID: from.ID})
	require.NoError(t, err)
	_, err = svc.Update(ctx, w.admin, active.ID, EnrollmentUpdateRequest{CompletedAt: flex(time.Now().UTC())})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldMap(), "completed_at")

	row, err := svc.Create(ctx, w.admin, EnrollmentCreateRequest{StudentID: alice.ID, ScheduleID: from.ID})
	require.NoError(t, err)
	_, err = svc.Update(ctx, w.admin, row.ID, EnrollmentUpdateRequest{Status: ptr(models.EnrollmentCancelled)})
	require.NoError(t, err)

	_, err = svc.Update(ctx, w.admin, row.ID, EnrollmentUpdateRequest{ScheduleID: ptr(to.ID)})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	_, err = svc.Update(ctx, w.admin, row.ID, EnrollmentUpdateRequest{StudentID: ptr(bob.ID)})
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)
	_, err = svc.Update(ctx, w.admin, row.ID, EnrollmentUpdateRequest{CompletedAt: flex(time.Now().UTC())})
	require.ErrorAs(t, err, &verr)

	got, err := svc.Get(ctx, w.admin, row.ID)
	require.NoError(t, err)
	assert.Equal(t, from.ID, got.ScheduleID)
	assert.Equal(t, alice.ID, got.StudentID)
	assert.Nil(t, got.CompletedAt)
}

func TestStudentsOnlySeeTheirOwnEnrollments(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Privacy", -1)
	_, alice := w.student("Alice")
	_, bob := w.student("Bob")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	aliceRow, err := svc.OptIn(ctx, alice, schedule.ID)
	require.NoError(t, err)
	_, err = svc.OptIn(ctx, bob, schedule.ID)
	require.NoError(t, err)

	mine, err := svc.List(ctx, alice, EnrollmentFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, aliceRow.ID, mine[0].ID)

	all, err := svc.List(ctx, w.admin, EnrollmentFilter{Status: string(models.EnrollmentEnrolled)})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Get(ctx, bob, aliceRow.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteEnrollmentFreesSeat(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("One seat", 1)
	_, alice := w.student("Alice")
	_, bob := w.student("Bob")
	svc := NewEnrollmentService(w.db, w.locks)
	ctx := context.Background()

	row, err := svc.OptIn(ctx, alice, schedule.ID)
	require.NoError(t, err)
	_, err = svc.OptIn(ctx, bob, schedule.ID)
	require.ErrorIs(t, err, apperror.ErrCapacityExceeded)

	require.NoError(t, svc.Delete(ctx, w.admin, row.ID))
	assert.ErrorIs(t, svc.Delete(ctx, w.admin, row.ID), apperror.ErrNotFound)

	_, err = svc.OptIn(ctx, bob, schedule.ID)
	assert.NoError(t, err)
}
