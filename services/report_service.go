package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"trainhub_go/models"
	"trainhub_go/storage"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const (
	reportSheet       = "Attendance"
	reportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	reportTableRow    = 8
)

var reportColumns = []string{"No.", "Student Code", "Name", "Status", "Enrolled At"}

// Report is a rendered attendance workbook.
type Report struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
	Key         string `json:"key,omitempty"`
	URL         string `json:"url,omitempty"`
}

type ReportService struct {
	db    *gorm.DB
	store storage.ObjectStore
	now   func() time.Time
}

// NewReportService builds the exporter. store may be nil when S3 is not configured.
func NewReportService(db *gorm.DB, store storage.ObjectStore) *ReportService {
	return &ReportService{db: db, store: store, now: time.Now}
}

func (s *ReportService) CanStore() bool { return s.store != nil }

// AttendanceReport renders the enrollment roster of a schedule as xlsx.
func (s *ReportService) AttendanceReport(ctx context.Context, scheduleID uint) (*Report, error) {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).
		Preload("Instructor.User").
		Preload("Enrollments", func(db *gorm.DB) *gorm.DB { return db.Order("enrolled_at ASC, id ASC") }).
		Preload("Enrollments.Student.User").
		First(&schedule, scheduleID).Error
	if err != nil {
		return nil, notFoundOr(err, "schedule")
	}

	content, err := buildAttendanceWorkbook(&schedule)
	if err != nil {
		return nil, err
	}
	return &Report{
		FileName:    reportFileName(&schedule),
		ContentType: reportContentType,
		Content:     content,
	}, nil
}

// Store uploads a rendered report and fills in its key and URL.
func (s *ReportService) Store(ctx context.Context, scheduleID uint, r *Report) error {
	if s.store == nil {
		return errors.New("object storage is not configured")
	}
	key := fmt.Sprintf("reports/attendance/%d/%s-%s", scheduleID, s.now().UTC().Format("20060102T150405"), r.FileName)
	url, err := s.store.Put(ctx, key, r.Content, r.ContentType)
	if err != nil {
		return errors.Wrap(err, "upload attendance report")
	}
	r.Key = key
	r.URL = url
	return nil
}

func buildAttendanceWorkbook(schedule *models.Schedule) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, errors.Wrap(err, "rename sheet")
	}

	instructor := schedule.Instructor.User.Name
	if instructor == "" {
		instructor = "-"
	}
	header := [][2]string{
		{"Training", schedule.Title},
		{"Instructor", instructor},
		{"Start", schedule.StartTime.UTC().Format("2006-01-02 15:04")},
		{"End", schedule.EndTime.UTC().Format("2006-01-02 15:04")},
		{"Location / Mode", strings.TrimSpace(schedule.Location + " / " + string(schedule.Mode))},
		{"Total Enrolled", fmt.Sprint(countEnrolled(schedule.Enrollments))},
	}
	for i, kv := range header {
		row := i + 1
		if err := f.SetCellStr(reportSheet, fmt.Sprintf("A%d", row), kv[0]); err != nil {
			return nil, errors.Wrap(err, "write report header")
		}
		if err := f.SetCellStr(reportSheet, fmt.Sprintf("B%d", row), kv[1]); err != nil {
			return nil, errors.Wrap(err, "write report header")
		}
	}

	rows := make([][]string, 0, len(schedule.Enrollments))
	for i, e := range schedule.Enrollments {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			e.Student.StudentCode,
			e.Student.User.Name,
			string(e.Status),
			e.EnrolledAt.UTC().Format("2006-01-02"),
		})
	}

	for c, title := range reportColumns {
		cell, _ := excelize.CoordinatesToCellName(c+1, reportTableRow)
		if err := f.SetCellStr(reportSheet, cell, title); err != nil {
			return nil, errors.Wrap(err, "write report columns")
		}
	}
	for r, row := range rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, reportTableRow+1+r)
			if err := f.SetCellStr(reportSheet, cell, val); err != nil {
				return nil, errors.Wrapf(err, "write cell %s", cell)
			}
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "create header style")
	}
	lastCol, _ := excelize.ColumnNumberToName(len(reportColumns))
	tableHeader := fmt.Sprintf("A%d:%s%d", reportTableRow, lastCol, reportTableRow)
	_ = f.SetCellStyle(reportSheet, "A1", fmt.Sprintf("A%d", len(header)), bold)
	_ = f.SetCellStyle(reportSheet, fmt.Sprintf("A%d", reportTableRow), fmt.Sprintf("%s%d", lastCol, reportTableRow), bold)
	if err := f.AutoFilter(reportSheet, tableHeader, nil); err != nil {
		return nil, errors.Wrap(err, "set autofilter")
	}
	for c, width := range columnWidths(reportColumns, rows) {
		col, _ := excelize.ColumnNumberToName(c + 1)
		_ = f.SetColWidth(reportSheet, col, col, width)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "render workbook")
	}
	return buf.Bytes(), nil
}

// columnWidths sizes each column by its longest value, clamped to 12..40.
func columnWidths(header []string, rows [][]string) []float64 {
	widths := make([]float64, len(header))
	for c, h := range header {
		longest := len([]rune(h))
		for _, row := range rows {
			if c < len(row) {
				if l := len([]rune(row[c])); l > longest {
					longest = l
				}
			}
		}
		w := float64(longest) * 1.1
		if w < 12 {
			w = 12
		}
		if w > 40 {
			w = 40
		}
		widths[c] = w
	}
	return widths
}

func countEnrolled(enrollments []models.Enrollment) int {
	n := 0
	for _, e := range enrollments {
		if e.Status == models.EnrollmentEnrolled {
			n++
		}
	}
	return n
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func reportFileName(schedule *models.Schedule) string {
	title := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(schedule.Title), "-"), "-")
	if title == "" {
		title = "training"
	}
	return fmt.Sprintf("attendance-%d-%s.xlsx", schedule.ID, title)
}
