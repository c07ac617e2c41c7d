package controllers

import (
	"fmt"
	"strconv"

	"trainhub_go/middleware"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

// TrainingController serves the per-training routes: opt in/out,
// attendance sheets and the attendance export.
type TrainingController struct {
	enrollments *services.EnrollmentService
	attendance  *services.AttendanceService
	reports     *services.ReportService
}

func NewTrainingController(enrollments *services.EnrollmentService, attendance *services.AttendanceService, reports *services.ReportService) *TrainingController {
	return &TrainingController{enrollments: enrollments, attendance: attendance, reports: reports}
}

func (tc *TrainingController) OptIn(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	row, err := tc.enrollments.OptIn(c.UserContext(), middleware.CurrentIdentity(c), id)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "OPTIN", "schedules", id, "opted in to \""+row.Schedule.Title+"\"", nil)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Enrolled successfully.",
		"enrollment": row,
	})
}

func (tc *TrainingController) OptOut(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	row, err := tc.enrollments.OptOut(c.UserContext(), middleware.CurrentIdentity(c), id)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "OPTOUT", "schedules", id, "", nil)
	return c.JSON(fiber.Map{
		"message":    "Opted out successfully.",
		"enrollment": row,
	})
}

func (tc *TrainingController) GetAttendance(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	sheet, err := tc.attendance.ListBySchedule(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(sheet)
}

// MarkAttendance upserts a batch of attendance entries. Per-entry
// failures are reported in the body, never as a failed request.
func (tc *TrainingController) MarkAttendance(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req services.BulkMarkRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := tc.attendance.BulkMark(c.UserContext(), middleware.CurrentIdentity(c), id, req)
	if err != nil {
		return err
	}
	if result.Saved > 0 {
		middleware.LogActivity(c, "MARK", "schedules", id,
			fmt.Sprintf("marked attendance for %d students", result.Saved), fiber.Map{"saved": result.Saved, "failed": result.Failed})
	}

	message := "Attendance saved successfully."
	if result.Failed > 0 {
		message = "Attendance saved with errors."
	}
	return c.JSON(fiber.Map{
		"message": message,
		"results": result.Results,
		"saved":   result.Saved,
		"failed":  result.Failed,
	})
}

// ExportAttendance streams the xlsx roster. With ?store=true the file is
// uploaded to object storage and its location returned instead.
func (tc *TrainingController) ExportAttendance(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	report, err := tc.reports.AttendanceReport(c.UserContext(), id)
	if err != nil {
		return err
	}

	if store, _ := strconv.ParseBool(c.Query("store")); store {
		if !tc.reports.CanStore() {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Object storage is not configured")
		}
		if err := tc.reports.Store(c.UserContext(), id, report); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(report)
	}

	c.Set(fiber.HeaderContentType, report.ContentType)
	c.Attachment(report.FileName)
	return c.Send(report.Content)
}
