package controllers

import (
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type DashboardController struct {
	dashboard *services.DashboardService
}

func NewDashboardController(dashboard *services.DashboardService) *DashboardController {
	return &DashboardController{dashboard: dashboard}
}

func (dc *DashboardController) Stats(c *fiber.Ctx) error {
	stats, err := dc.dashboard.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (dc *DashboardController) Activity(c *fiber.Ctx) error {
	items, err := dc.dashboard.Activity(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"recent_activity": items})
}
