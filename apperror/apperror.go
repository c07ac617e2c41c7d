package apperror

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")

	// ErrAlreadyEnrolled and ErrInvalidTransition are conflicts with their own codes.
	ErrAlreadyEnrolled   = &coded{code: "already_enrolled", msg: "student is already enrolled in this training", parent: ErrConflict}
	ErrInvalidTransition = &coded{code: "invalid_transition", msg: "enrollment status transition is not allowed", parent: ErrConflict}
)

type coded struct {
	code   string
	msg    string
	parent error
}

func (c *coded) Error() string { return c.msg }
func (c *coded) Unwrap() error { return c.parent }
func (c *coded) Code() string  { return c.code }

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

// Validation builds a single-field ValidationError.
func Validation(field, msg string) error {
	return NewValidationError(errors.New("validation failed"), FieldError{Field: field, Error: msg})
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	if len(err.Fields) == 0 {
		return err.Err.Error()
	}
	parts := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return err.Err.Error() + " (" + strings.Join(parts, ", ") + ")"
}

func (err *ValidationError) Unwrap() error { return err.Err }

// FieldMap flattens the field list the way clients consume it.
func (err *ValidationError) FieldMap() map[string]string {
	out := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Error
		}
	}
	return out
}

// NotFound reports a missing record of the named resource.
func NotFound(resource string) error {
	return errors.Wrap(ErrNotFound, resource)
}

// NotFoundf is NotFound with a formatted subject.
func NotFoundf(format string, args ...interface{}) error {
	return errors.Wrap(ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflict(msg string) error {
	return errors.Wrap(ErrConflict, msg)
}

func Forbidden(msg string) error {
	return errors.Wrap(ErrForbidden, msg)
}

func Unauthorized(msg string) error {
	return errors.Wrap(ErrUnauthorized, msg)
}

// Code returns a stable machine readable code for err.
func Code(err error) string {
	var c interface{ Code() string }
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "validation_failed"
	case errors.As(err, &c):
		return c.Code()
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal_error"
	}
}
