package controllers

import (
	"strconv"
	"time"

	"trainhub_go/apperror"
	"trainhub_go/middleware"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
)

// LogController exposes the raw audit trail to admins.
type LogController struct {
	activity *services.ActivityService
}

func NewLogController(activity *services.ActivityService) *LogController {
	return &LogController{activity: activity}
}

// GetLogs retrieves paginated activity logs with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	userID, err := queryUint(c, "user_id")
	if err != nil {
		return err
	}
	from, err := queryDate(c, "start_date")
	if err != nil {
		return err
	}
	to, err := queryDate(c, "end_date")
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	result, err := lc.activity.Query(c.UserContext(), services.LogFilter{
		UserID:   userID,
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		From:     from,
		To:       to,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// GetArchives lists archived log batches.
func (lc *LogController) GetArchives(c *fiber.Ctx) error {
	archives, err := lc.activity.Archives(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(archives)
}

// ArchiveLogs runs the archive job on demand (Admin only)
func (lc *LogController) ArchiveLogs(c *fiber.Ctx) error {
	if !lc.activity.CanArchive() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Object storage is not configured")
	}
	days, err := strconv.Atoi(c.Query("days", "90"))
	if err != nil || days < 7 {
		return apperror.Validation("days", "days must be an integer of at least 7")
	}

	archive, err := lc.activity.ArchiveOlderThan(c.UserContext(), days)
	if err != nil {
		return err
	}
	if archive == nil {
		return c.JSON(fiber.Map{"message": "Nothing to archive."})
	}
	middleware.LogActivity(c, "ARCHIVE", "activity_logs", archive.ID, "", fiber.Map{"days": days, "count": archive.LogCount})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Logs archived.",
		"archive": archive,
	})
}

func queryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperror.Validation(key, key+" must be a YYYY-MM-DD date")
	}
	return &t, nil
}
