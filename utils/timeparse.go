package utils

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDateTime accepts ISO timestamps and the MySQL style datetimes the
// frontend sends. Values without a zone are read as UTC.
func ParseDateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("datetime value cannot be empty")
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported datetime format %q", value)
}

// FlexTime is a time.Time that unmarshals from any ParseDateTime layout.
type FlexTime struct {
	time.Time
}

func (f *FlexTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("datetime must be a string")
	}
	t, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	f.Time = t
	return nil
}

func (f FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Time)
}

// Ptr returns nil for a nil FlexTime and the wrapped time otherwise.
func (f *FlexTime) Ptr() *time.Time {
	if f == nil {
		return nil
	}
	t := f.Time
	return &t
}
