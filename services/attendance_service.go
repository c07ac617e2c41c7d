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
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttendanceEntry struct {
	StudentID uint                    `json:"student_id"`
	Status    models.AttendanceStatus `json:"status"`
	Notes     string                  `json:"notes"`
}

type BulkMarkRequest struct {
	Attendance []AttendanceEntry `json:"attendance" validate:"required,min=1"`
}

type AttendanceUpdateRequest struct {
	Status models.AttendanceStatus `json:"status" validate:"required,enum"`
	Notes  *string                 `json:"notes"`
}

const (
	MarkSaved = "saved"
	MarkError = "error"
)

// MarkResult is the outcome for one entry of a bulk mark.
type MarkResult struct {
	StudentID uint               `json:"student_id"`
	Status    string             `json:"status"`
	Error     string             `json:"error,omitempty"`
	Record    *models.Attendance `json:"record,omitempty"`
}

type BulkMarkResult struct {
	Results []MarkResult `json:"results"`
	Saved   int          `json:"saved"`
	Failed  int          `json:"failed"`
}

type AttendanceSummary struct {
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Total    int `json:"total"`
	Enrolled int `json:"enrolled"`
}

type AttendanceSheet struct {
	Schedule   *models.Schedule    `json:"schedule"`
	Attendance []models.Attendance `json:"attendance"`
	Summary    AttendanceSummary   `json:"summary"`
}

type AttendanceService struct {
	db    *gorm.DB
	locks *KeyedLocker
	now   func() time.Time
}

func NewAttendanceService(db *gorm.DB, locks *KeyedLocker) *AttendanceService {
	if locks == nil {
		locks = NewKeyedLocker()
	}
	return &AttendanceService{db: db, locks: locks, now: time.Now}
}

// BulkMark upserts one attendance row per entry. Entries fail on their
// own; the rest of the batch is still applied.
func (s *AttendanceService) BulkMark(ctx context.Context, ident Identity, scheduleID uint, req BulkMarkRequest) (*BulkMarkResult, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	var schedule models.Schedule
	if err := s.db.WithContext(ctx).Select("id").First(&schedule, scheduleID).Error; err != nil {
		return nil, notFoundOr(err, "schedule")
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	out := &BulkMarkResult{Results: make([]MarkResult, 0, len(req.Attendance))}
	for _, entry := range req.Attendance {
		record, err := s.markOne(ctx, scheduleID, entry, today)
		res := MarkResult{StudentID: entry.StudentID}
		if err != nil {
			res.Status = MarkError
			res.Error = err.Error()
			if apperror.Code(err) == "internal_error" {
				logrus.WithError(err).WithFields(logrus.Fields{
					"schedule_id": scheduleID,
					"student_id":  entry.StudentID,
				}).Error("Failed to save attendance entry")
				res.Error = "could not save attendance"
			}
			out.Failed++
		} else {
			res.Status = MarkSaved
			res.Record = record
			out.Saved++
		}
		observability.AttendanceMarks.WithLabelValues(res.Status).Inc()
		out.Results = append(out.Results, res)
	}
	return out, nil
}

func (s *AttendanceService) markOne(ctx context.Context, scheduleID uint, entry AttendanceEntry, day time.Time) (*models.Attendance, error) {
	if entry.StudentID == 0 {
		return nil, errors.New("student_id is required")
	}
	if !entry.Status.Valid() {
		return nil, errors.Errorf("status must be present or absent, got %q", entry.Status)
	}
	db := s.db.WithContext(ctx)
	if err := ensureStudentRef(db, entry.StudentID); err != nil {
		var verr *apperror.ValidationError
		if errors.As(err, &verr) {
			return nil, errors.New("student does not exist")
		}
		return nil, err
	}

	record := models.Attendance{
		StudentID:  entry.StudentID,
		ScheduleID: scheduleID,
		Status:     entry.Status,
		Notes:      strings.TrimSpace(entry.Notes),
		Date:       datatypes.Date(day),
	}
	err := db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "schedule_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "notes", "date", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return nil, errors.Wrap(err, "upsert attendance")
	}

	var saved models.Attendance
	if err := db.Where("student_id = ? AND schedule_id = ?", entry.StudentID, scheduleID).First(&saved).Error; err != nil {
		return nil, errors.Wrap(err, "reload attendance")
	}
	return &saved, nil
}

// UpdateOne overwrites status and notes of an existing row.
func (s *AttendanceService) UpdateOne(ctx context.Context, ident Identity, id uint, req AttendanceUpdateRequest) (*models.Attendance, error) {
	if err := ident.requireManager(); err != nil {
		return nil, err
	}
	if err := utils.Validate(&req); err != nil {
		return nil, err
	}

	var record models.Attendance
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, notFoundOr(err, "attendance")
	}
	record.Status = req.Status
	record.Notes = ""
	if req.Notes != nil {
		record.Notes = strings.TrimSpace(*req.Notes)
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(&record).Error; err != nil {
		return nil, errors.Wrap(err, "update attendance")
	}
	return &record, nil
}

// ListBySchedule returns the schedule roster, its attendance rows and a summary.
func (s *AttendanceService) ListBySchedule(ctx context.Context, scheduleID uint) (*AttendanceSheet, error) {
	db := s.db.WithContext(ctx)
	var schedule models.Schedule
	err := db.Preload("Enrollments.Student.User").First(&schedule, scheduleID).Error
	if err != nil {
		return nil, notFoundOr(err, "schedule")
	}

	var rows []models.Attendance
	if err := db.Preload("Student.User").Where("schedule_id = ?", scheduleID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list attendance")
	}

	sheet := &AttendanceSheet{Schedule: &schedule, Attendance: rows}
	sheet.Summary.Total = len(rows)
	for _, r := range rows {
		switch r.Status {
		case models.AttendancePresent:
			sheet.Summary.Present++
		case models.AttendanceAbsent:
			sheet.Summary.Absent++
		}
	}
	for _, e := range schedule.Enrollments {
		if e.Status == models.EnrollmentEnrolled {
			sheet.Summary.Enrolled++
		}
	}
	return sheet, nil
}
