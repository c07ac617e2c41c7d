package controllers

import (
	"trainhub_go/middleware"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type CourseController struct {
	courses *services.CourseService
}

func NewCourseController(courses *services.CourseService) *CourseController {
	return &CourseController{courses: courses}
}

// GetCourses lists courses, optionally filtered by level, category and status.
func (cc *CourseController) GetCourses(c *fiber.Ctx) error {
	status, err := queryBool(c, "status")
	if err != nil {
		return err
	}
	courses, err := cc.courses.List(c.UserContext(), services.CourseFilter{
		Level:    c.Query("level"),
		Category: c.Query("category"),
		Status:   status,
	})
	if err != nil {
		return err
	}
	return c.JSON(courses)
}

func (cc *CourseController) GetCourse(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	course, err := cc.courses.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(course)
}

func (cc *CourseController) CreateCourse(c *fiber.Ctx) error {
	var in services.CourseInput
	if err := bind(c, &in); err != nil {
		return err
	}
	course, err := cc.courses.Create(c.UserContext(), middleware.CurrentIdentity(c), in)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "CREATE", "courses", course.ID, "created course \""+course.Title+"\"", course)
	return c.Status(fiber.StatusCreated).JSON(course)
}

func (cc *CourseController) UpdateCourse(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in services.CourseInput
	if err := bind(c, &in); err != nil {
		return err
	}
	course, err := cc.courses.Update(c.UserContext(), middleware.CurrentIdentity(c), id, in)
	if err != nil {
		return err
	}
	middleware.LogActivity(c, "UPDATE", "courses", course.ID, "updated course \""+course.Title+"\"", in)
	return c.JSON(fiber.Map{
		"message": "Course updated successfully.",
		"course":  course,
	})
}

func (cc *CourseController) DeleteCourse(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := cc.courses.Delete(c.UserContext(), middleware.CurrentIdentity(c), id); err != nil {
		return err
	}
	middleware.LogActivity(c, "DELETE", "courses", id, "", nil)
	return deleted(c)
}
