package controllers

import (
	"trainhub_go/middleware"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type ScheduleController struct {
	schedules *services.ScheduleService
}

func NewScheduleController(schedules *services.ScheduleService) *ScheduleController {
	return &ScheduleController{schedules: schedules}
}

// GetSchedules lists trainings. Filters: status, course_id, instructor_id, upcoming.
func (sc *ScheduleController) GetSchedules(c *fiber.Ctx) error {
	courseID, err := queryUint(c, "course_id")
	if err != nil {
		return err
	}
	instructorID, err := queryUint(c, "instructor_id")
	if err != nil {
		return err
	}
	upcoming, err := queryBool(c, "upcoming")
	if err != nil {
		return err
	}
	schedules, err := sc.schedules.List(c.UserContext(), services.ScheduleFilter{
		Status:       c.Query("status"),
		CourseID:     courseID,
		InstructorID: instructorID,
		Upcoming:     upcoming != nil && *upcoming,
	})
	if err != nil {
		return err
	}
	return c.JSON(schedules)
}

func (sc *ScheduleController) GetSchedule(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	schedule, err := sc.schedules.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(schedule)
}

func (sc *ScheduleController) CreateSchedule(c *fiber.Ctx) error {
	var in services.ScheduleInput
	if err := bind(c, &in); err != nil {
		return err
	}
	schedule, err := sc.schedules.Create(c.UserContext(), middleware.CurrentIdentity(c), in)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "CREATE", "schedules", schedule.ID, "scheduled training \""+schedule.Title+"\"", nil)
	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (sc *ScheduleController) UpdateSchedule(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in services.ScheduleInput
	if err := bind(c, &in); err != nil {
		return err
	}
	schedule, err := sc.schedules.Update(c.UserContext(), middleware.CurrentIdentity(c), id, in)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "UPDATE", "schedules", schedule.ID, "updated training \""+schedule.Title+"\"", in)
	return c.JSON(fiber.Map{
		"message":  "Schedule updated successfully.",
		"schedule": schedule,
	})
}

// DeleteSchedule removes the training with its enrollments and attendance.
func (sc *ScheduleController) DeleteSchedule(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := sc.schedules.Delete(c.UserContext(), middleware.CurrentIdentity(c), id); err != nil {
		return err
	}
	middleware.LogActivity(c, "DELETE", "schedules", id, "", nil)
	return deleted(c)
}
