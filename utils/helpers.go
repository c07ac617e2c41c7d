package utils

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// StudentCode builds the STU<year><00042> code for a user id.
func StudentCode(year int, userID uint) string {
	return fmt.Sprintf("STU%d%05d", year, userID)
}

// CurrentStudentCode is StudentCode for the current year.
func CurrentStudentCode(userID uint) string {
	return StudentCode(time.Now().Year(), userID)
}

// SanitizeString removes dangerous characters from string
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// NormalizeEmail lower-cases and trims an email for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(SanitizeString(email))
}

// SanitizeList trims every entry and drops blanks, keeping order.
func SanitizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = SanitizeString(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// HumanizeSince renders how long ago t was, e.g. "2 hours ago".
func HumanizeSince(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	unit := func(n int, name string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s ago", name)
		}
		return fmt.Sprintf("%d %ss ago", n, name)
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return unit(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return unit(int(d/time.Hour), "hour")
	case d < 30*24*time.Hour:
		return unit(int(d/(24*time.Hour)), "day")
	case d < 365*24*time.Hour:
		return unit(int(d/(30*24*time.Hour)), "month")
	default:
		return unit(int(d/(365*24*time.Hour)), "year")
	}
}
