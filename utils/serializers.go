package utils

import (
	"time"

	"trainhub_go/models"
)

// ProfileResponse is the public shape of a user account.
type ProfileResponse struct {
	ID        uint        `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	Phone     string      `json:"phone"`
	Status    bool        `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func ToProfile(u *models.User) ProfileResponse {
	return ProfileResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Phone:     u.Phone,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// TokenResponse is returned by register, login and refresh.
type TokenResponse struct {
	Token     string          `json:"token"`
	TokenType string          `json:"token_type"`
	ExpiresIn int64           `json:"expires_in"`
	User      ProfileResponse `json:"user"`
}

// ActivityItem is one line of the dashboard feed.
type ActivityItem struct {
	ID         uint      `json:"id"`
	Message    string    `json:"message"`
	Time       string    `json:"time"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID uint      `json:"resource_id"`
	CreatedAt  time.Time `json:"created_at"`
}
