package controllers

import (
	"trainhub_go/middleware"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type EnrollmentController struct {
	enrollments *services.EnrollmentService
}

func NewEnrollmentController(enrollments *services.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{enrollments: enrollments}
}

// GetEnrollments lists enrollments. Students only see their own.
func (ec *EnrollmentController) GetEnrollments(c *fiber.Ctx) error {
	scheduleID, err := queryUint(c, "training_schedule_id")
	if err != nil {
		return err
	}
	studentID, err := queryUint(c, "student_id")
	if err != nil {
		return err
	}
	rows, err := ec.enrollments.List(c.UserContext(), middleware.CurrentIdentity(c), services.EnrollmentFilter{
		Status:     c.Query("status"),
		ScheduleID: scheduleID,
		StudentID:  studentID,
	})
	if err != nil {
		return err
	}
	return c.JSON(rows)
}

func (ec *EnrollmentController) GetEnrollment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	row, err := ec.enrollments.Get(c.UserContext(), middleware.CurrentIdentity(c), id)
	if err != nil {
		return err
	}
	return c.JSON(row)
}

func (ec *EnrollmentController) CreateEnrollment(c *fiber.Ctx) error {
	var req services.EnrollmentCreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	row, err := ec.enrollments.Create(c.UserContext(), middleware.CurrentIdentity(c), req)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "CREATE", "enrollments", row.ID,
		"enrolled "+row.Student.User.Name+" in \""+row.Schedule.Title+"\"", nil)
	return c.Status(fiber.StatusCreated).JSON(row)
}

func (ec *EnrollmentController) UpdateEnrollment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req services.EnrollmentUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	row, err := ec.enrollments.Update(c.UserContext(), middleware.CurrentIdentity(c), id, req)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "UPDATE", "enrollments", row.ID, "set enrollment #"+c.Params("id")+" to "+string(row.Status), req)
	return c.JSON(fiber.Map{
		"message":    "Enrollment updated successfully.",
		"enrollment": row,
	})
}

func (ec *EnrollmentController) DeleteEnrollment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := ec.enrollments.Delete(c.UserContext(), middleware.CurrentIdentity(c), id); err != nil {
		return err
	}
	middleware.LogActivity(c, "DELETE", "enrollments", id, "", nil)
	return deleted(c)
}
