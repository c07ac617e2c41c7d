package services

import (
	"context"
	"testing"

	"trainhub_go/apperror"
	"trainhub_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkMarkIsIdempotentPerStudent(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Attendance", -1)
	s3, _ := w.student("Three")
	s4, _ := w.student("Four")
	svc := NewAttendanceService(w.db, w.locks)
	ctx := context.Background()

	res, err := svc.BulkMark(ctx, w.admin, schedule.ID, BulkMarkRequest{Attendance: []AttendanceEntry{
		{StudentID: s3.ID, Status: models.AttendancePresent},
		{StudentID: s4.ID, Status: models.AttendanceAbsent},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
	assert.Zero(t, res.Failed)

	res, err = svc.BulkMark(ctx, w.admin, schedule.ID, BulkMarkRequest{Attendance: []AttendanceEntry{
		{StudentID: s3.ID, Status: models.AttendanceAbsent, Notes: "left early"},
	}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	require.NotNil(t, res.Results[0].Record)
	assert.Equal(t, models.AttendanceAbsent, res.Results[0].Record.Status)

	var rows []models.Attendance
	require.NoError(t, w.db.Where("schedule_id = ?", schedule.ID).Order("student_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, s3.ID, rows[0].StudentID)
	assert.Equal(t, models.AttendanceAbsent, rows[0].Status)
	assert.Equal(t, "left early", rows[0].Notes)
	assert.Equal(t, s4.ID, rows[1].StudentID)
	assert.Equal(t, models.AttendanceAbsent, rows[1].Status)
}

func TestBulkMarkReportsEntryFailuresAndKeepsTheRest(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Partial", -1)
	alice, _ := w.student("Alice")
	svc := NewAttendanceService(w.db, w.locks)

	res, err := svc.BulkMark(context.Background(), w.admin, schedule.ID, BulkMarkRequest{Attendance: []AttendanceEntry{
		{StudentID: alice.ID, Status: models.AttendancePresent},
		{StudentID: 777, Status: models.AttendancePresent},
		{StudentID: alice.ID, Status: "late"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, MarkSaved, res.Results[0].Status)
	assert.Equal(t, MarkError, res.Results[1].Status)
	assert.Equal(t, "student does not exist", res.Results[1].Error)
	assert.Equal(t, MarkError, res.Results[2].Status)
	assert.Contains(t, res.Results[2].Error, "present or absent")
}

func TestBulkMarkGuards(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Guards", -1)
	alice, aliceIdent := w.student("Alice")
	svc := NewAttendanceService(w.db, w.locks)
	ctx := context.Background()
	entries := BulkMarkRequest{Attendance: []AttendanceEntry{{StudentID: alice.ID, Status: models.AttendancePresent}}}

	_, err := svc.BulkMark(ctx, aliceIdent, schedule.ID, entries)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = svc.BulkMark(ctx, w.admin, 31337, entries)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.BulkMark(ctx, w.admin, schedule.ID, BulkMarkRequest{})
	var verr *apperror.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateOneAndSheetSummary(t *testing.T) {
	w := newWorld(t)
	schedule := w.schedule("Sheet", -1)
	alice, aliceIdent := w.student("Alice")
	bob, bobIdent := w.student("Bob")
	_, instructorIdent := w.instructor("Ida")
	ctx := context.Background()

	enrollments := NewEnrollmentService(w.db, w.locks)
	_, err := enrollments.OptIn(ctx, aliceIdent, schedule.ID)
	require.NoError(t, err)
	_, err = enrollments.OptIn(ctx, bobIdent, schedule.ID)
	require.NoError(t, err)
	_, err = enrollments.OptOut(ctx, bobIdent, schedule.ID)
	require.NoError(t, err)

	svc := NewAttendanceService(w.db, w.locks)
	res, err := svc.BulkMark(ctx, instructorIdent, schedule.ID, BulkMarkRequest{Attendance: []AttendanceEntry{
		{StudentID: alice.ID, Status: models.AttendancePresent, Notes: "on time"},
		{StudentID: bob.ID, Status: models.AttendancePresent},
	}})
	require.NoError(t, err)
	require.Equal(t, 2, res.Saved)

	bobRecord := res.Results[1].Record
	updated, err := svc.UpdateOne(ctx, instructorIdent, bobRecord.ID, AttendanceUpdateRequest{Status: models.AttendanceAbsent})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceAbsent, updated.Status)
	assert.Empty(t, updated.Notes)

	_, err = svc.UpdateOne(ctx, instructorIdent, 9090, AttendanceUpdateRequest{Status: models.AttendanceAbsent})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	sheet, err := svc.ListBySchedule(ctx, schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, AttendanceSummary{Present: 1, Absent: 1, Total: 2, Enrolled: 1}, sheet.Summary)
	require.Len(t, sheet.Attendance, 2)
	assert.Equal(t, "Alice", sheet.Attendance[0].Student.User.Name)
	assert.Equal(t, "Sheet", sheet.Schedule.Title)
}
