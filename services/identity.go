package services

import (
	"trainhub_go/apperror"
	"trainhub_go/models"
)

// Identity is the authenticated caller, resolved once per request and
// passed explicitly into every operation that depends on who is asking.
type Identity struct {
	UserID uint
	Role   models.Role
}

func (i Identity) IsAdmin() bool { return i.Role == models.RoleAdmin }

func (i Identity) IsStudent() bool { return i.Role == models.RoleStudent }

// CanManage covers the staff roles allowed to edit catalog and attendance data.
func (i Identity) CanManage() bool {
	return i.Role == models.RoleAdmin || i.Role == models.RoleInstructor
}

func (i Identity) requireManager() error {
	if !i.CanManage() {
		return apperror.Forbidden("admin or instructor role required")
	}
	return nil
}

func (i Identity) requireAdmin() error {
	if !i.IsAdmin() {
		return apperror.Forbidden("admin role required")
	}
	return nil
}
