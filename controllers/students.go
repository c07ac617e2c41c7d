package controllers

import (
	"trainhub_go/middleware"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type StudentController struct {
	roster *services.RosterService
}

func NewStudentController(roster *services.RosterService) *StudentController {
	return &StudentController{roster: roster}
}

func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	students, err := sc.roster.ListStudents(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(students)
}

func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	student, err := sc.roster.GetStudent(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(student)
}

func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	var req services.StudentCreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	student, err := sc.roster.CreateStudent(c.UserContext(), middleware.CurrentIdentity(c), req)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "CREATE", "students", student.ID, "added student "+student.User.Name, nil)
	return c.Status(fiber.StatusCreated).JSON(student)
}

func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req services.StudentUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	student, err := sc.roster.UpdateStudent(c.UserContext(), middleware.CurrentIdentity(c), id, req)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "UPDATE", "students", student.ID, "updated student "+student.User.Name, req)
	return c.JSON(fiber.Map{
		"message": "Student updated successfully.",
		"student": student,
	})
}

// DeleteStudent also removes the student's enrollments and attendance.
func (sc *StudentController) DeleteStudent(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := sc.roster.DeleteStudent(c.UserContext(), middleware.CurrentIdentity(c), id); err != nil {
		return err
	}
	middleware.LogActivity(c, "DELETE", "students", id, "", nil)
	return deleted(c)
}
