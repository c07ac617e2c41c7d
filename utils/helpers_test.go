package utils

import (
	"testing"
	"time"

	"trainhub_go/apperror"
	"trainhub_go/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentCode(t *testing.T) {
	cases := []struct {
		year int
		id   uint
		want string
	}{
		{2024, 1, "STU202400001"},
		{2025, 42, "STU202500042"},
		{2025, 123456, "STU2025123456"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StudentCode(tc.year, tc.id))
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("secret1", hash))
	assert.Error(t, CheckPassword("secret2", hash))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  a\x00bc \n"))
	assert.Equal(t, "jane@example.com", NormalizeEmail(" Jane@Example.COM "))
	assert.Equal(t, []string{"go", "sql"}, SanitizeList([]string{" go ", "", "  ", "sql"}))
}

func TestHumanizeSince(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		10 * time.Second: "just now",
		time.Minute:      "1 minute ago",
		2 * time.Hour:    "2 hours ago",
		49 * time.Hour:   "2 days ago",
		-time.Hour:       "just now",
	}
	for ago, want := range cases {
		assert.Equal(t, want, HumanizeSince(now.Add(-ago), now), "ago=%s", ago)
	}
}

type sampleRequest struct {
	Title string        `json:"title" validate:"required,max=5"`
	Mode  models.Mode   `json:"mode" validate:"required,enum"`
	Level *models.Level `json:"level" validate:"omitempty,enum"`
	Items []sampleItem  `json:"items" validate:"required,min=1,dive"`
}

type sampleItem struct {
	Status models.AttendanceStatus `json:"status" validate:"required,enum"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	bad := models.Level("expert")
	err := Validate(&sampleRequest{
		Title: "far too long",
		Mode:  "carrier-pigeon",
		Level: &bad,
		Items: []sampleItem{{Status: "present"}, {Status: "late"}},
	})
	require.Error(t, err)

	var verr *apperror.ValidationError
	require.True(t, errors.As(err, &verr))
	fields := verr.FieldMap()
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "mode")
	assert.Contains(t, fields, "level")
	assert.Contains(t, fields, "items[1].status")
	assert.NotContains(t, fields, "items[0].status")
	assert.Equal(t, "validation_failed", apperror.Code(err))
}

func TestValidateAcceptsGoodInput(t *testing.T) {
	err := Validate(&sampleRequest{
		Title: "ok",
		Mode:  models.ModeOnline,
		Items: []sampleItem{{Status: models.AttendanceAbsent}},
	})
	assert.NoError(t, err)
}

func TestValidateRequiredMessage(t *testing.T) {
	err := Validate(&sampleRequest{Mode: models.ModeOnline, Items: []sampleItem{{Status: "present"}}})
	var verr *apperror.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "this field is required", verr.FieldMap()["title"])
}
