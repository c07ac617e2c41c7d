package controllers

import (
	"trainhub_go/middleware"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type InstructorController struct {
	roster *services.RosterService
}

func NewInstructorController(roster *services.RosterService) *InstructorController {
	return &InstructorController{roster: roster}
}

func (ic *InstructorController) GetInstructors(c *fiber.Ctx) error {
	instructors, err := ic.roster.ListInstructors(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(instructors)
}

func (ic *InstructorController) GetInstructor(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	instructor, err := ic.roster.GetInstructor(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(instructor)
}

func (ic *InstructorController) CreateInstructor(c *fiber.Ctx) error {
	var req services.InstructorCreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	instructor, err := ic.roster.CreateInstructor(c.UserContext(), middleware.CurrentIdentity(c), req)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "CREATE", "instructors", instructor.ID, "added instructor "+instructor.User.Name, nil)
	return c.Status(fiber.StatusCreated).JSON(instructor)
}

func (ic *InstructorController) UpdateInstructor(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req services.InstructorUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	instructor, err := ic.roster.UpdateInstructor(c.UserContext(), middleware.CurrentIdentity(c), id, req)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "UPDATE", "instructors", instructor.ID, "updated instructor "+instructor.User.Name, req)
	return c.JSON(fiber.Map{
		"message":    "Instructor updated successfully.",
		"instructor": instructor,
	})
}

func (ic *InstructorController) DeleteInstructor(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := ic.roster.DeleteInstructor(c.UserContext(), middleware.CurrentIdentity(c), id); err != nil {
		return err
	}
	middleware.LogActivity(c, "DELETE", "instructors", id, "", nil)
	return deleted(c)
}
