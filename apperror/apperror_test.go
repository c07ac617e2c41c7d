package apperror

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	cases := map[string]error{
		"":                   nil,
		"validation_failed":  Validation("title", "required"),
		"already_enrolled":   errors.Wrap(ErrAlreadyEnrolled, "opt in"),
		"invalid_transition": ErrInvalidTransition,
		"capacity_exceeded":  errors.Wrap(ErrCapacityExceeded, "schedule 3"),
		"not_found":          NotFound("course"),
		"conflict":           Conflict("taken"),
		"unauthorized":       Unauthorized("bad token"),
		"forbidden":          Forbidden("students only"),
		"internal_error":     errors.New("disk on fire"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Code(err), "%v", err)
	}
}

func TestCodedErrorsAreConflicts(t *testing.T) {
	assert.True(t, errors.Is(ErrAlreadyEnrolled, ErrConflict))
	assert.True(t, errors.Is(errors.Wrap(ErrInvalidTransition, "update"), ErrConflict))
	assert.False(t, errors.Is(ErrAlreadyEnrolled, ErrNotFound))
}

func TestValidationErrorFields(t *testing.T) {
	err := NewValidationError(errors.New("validation failed"),
		FieldError{Field: "email", Error: "required"},
		FieldError{Field: "email", Error: "must be an email"},
		FieldError{Field: "role", Error: "unsupported"},
	)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{"email": "required", "role": "unsupported"}, verr.FieldMap())
	assert.Equal(t, "validation failed (email: required, email: must be an email, role: unsupported)", err.Error())
}
