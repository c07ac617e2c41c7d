package controllers

import (
	"trainhub_go/middleware"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type AttendanceController struct {
	attendance *services.AttendanceService
}

func NewAttendanceController(attendance *services.AttendanceService) *AttendanceController {
	return &AttendanceController{attendance: attendance}
}

func (ac *AttendanceController) UpdateAttendance(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req services.AttendanceUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	record, err := ac.attendance.UpdateOne(c.UserContext(), middleware.CurrentIdentity(c), id, req)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "UPDATE", "attendance", record.ID, "", req)
	return c.JSON(fiber.Map{
		"message": "Attendance record updated.",
		"record":  record,
	})
}
