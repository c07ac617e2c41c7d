package controllers

import (
	"strconv"

	"trainhub_go/apperror"
	"trainhub_go/middleware"
	"trainhub_go/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrorHandler is the fiber ErrorHandler. It turns service errors into
// JSON responses that always carry a stable code.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, body := errorResponse(err)

	if status >= fiber.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"error":      err.Error(),
			"path":       c.Path(),
			"method":     c.Method(),
			"ip":         c.IP(),
			"request_id": middleware.GetRequestID(c),
		}).Error("HTTP Error")
		observability.CaptureErr(err, map[string]string{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": middleware.GetRequestID(c),
		})
	}
	return c.Status(status).JSON(body)
}

func errorResponse(err error) (int, fiber.Map) {
	code := apperror.Code(err)

	var verr *apperror.ValidationError
	if errors.As(err, &verr) {
		return fiber.StatusUnprocessableEntity, fiber.Map{
			"error":  "The given data was invalid.",
			"code":   code,
			"fields": verr.FieldMap(),
		}
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ferr.Code, fiber.Map{"error": ferr.Message, "code": fiberCode(ferr.Code)}
	}

	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return fiber.StatusNotFound, fiber.Map{"error": err.Error(), "code": code}
	case errors.Is(err, apperror.ErrCapacityExceeded), errors.Is(err, apperror.ErrConflict):
		return fiber.StatusConflict, fiber.Map{"error": err.Error(), "code": code}
	case errors.Is(err, apperror.ErrUnauthorized):
		return fiber.StatusUnauthorized, fiber.Map{"error": err.Error(), "code": code}
	case errors.Is(err, apperror.ErrForbidden):
		return fiber.StatusForbidden, fiber.Map{"error": err.Error(), "code": code}
	}
	return fiber.StatusInternalServerError, fiber.Map{"error": "Internal Server Error", "code": code}
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	}
	if status >= fiber.StatusInternalServerError {
		return "internal_error"
	}
	return "http_error"
}

// parseID reads a positive numeric route parameter.
func parseID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

// bind decodes the JSON body into dst.
func bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return nil
}

func queryUint(c *fiber.Ctx, key string) (uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apperror.Validation(key, key+" must be a positive integer")
	}
	return uint(v), nil
}

func queryBool(c *fiber.Ctx, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperror.Validation(key, key+" must be a boolean")
	}
	return &v, nil
}

func deleted(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Deleted"})
}
