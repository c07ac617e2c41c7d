package middleware

import (
	"time"

	"trainhub_go/observability"
	"trainhub_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	HeaderRequestID = "X-Request-ID"
	localRequestID  = "request_id"
	localActivity   = "activity"
)

// RequestID reuses an incoming X-Request-ID or mints a new one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Locals(localRequestID, id)
		c.Set(HeaderRequestID, id)
		return c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(localRequestID).(string)
	return id
}

// LoggerMiddleware logs HTTP requests and feeds the request metrics.
// Errors are rendered here so the logged status is the one the client sees.
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		duration := time.Since(start)
		status := c.Response().StatusCode()
		route := c.Route().Path
		observability.ObserveHTTP(c.Method(), route, status, duration)

		fields := logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   duration.String(),
			"ip":         c.IP(),
			"user_agent": c.Get(fiber.HeaderUserAgent),
			"request_id": GetRequestID(c),
		}
		if ident := CurrentIdentity(c); ident.UserID != 0 {
			fields["user_id"] = ident.UserID
		}
		entry := logrus.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("HTTP Request")
		case status >= 400:
			entry.Warn("HTTP Request")
		default:
			entry.Info("HTTP Request")
		}
		return nil
	}
}

// WithActivity makes the activity recorder available to LogActivity.
func WithActivity(svc *services.ActivityService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(localActivity, svc)
		return c.Next()
	}
}

// LogActivity records an audited mutation for the current caller. It is
// a no-op when no recorder is installed.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, summary string, details interface{}) {
	svc, ok := c.Locals(localActivity).(*services.ActivityService)
	if !ok || svc == nil {
		return
	}
	svc.Record(c.UserContext(), CurrentIdentity(c), services.ActivityEntry{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Summary:    summary,
		Details:    details,
		IPAddress:  c.IP(),
		UserAgent:  c.Get(fiber.HeaderUserAgent),
	})
}
