package dto

import "github.com/garasku/garasku-api/internal/models"

// CreateUserRequest is the admin payload for provisioning a user.
type CreateUserRequest struct {
	Email    string          `json:"email" binding:"required,email"`
	Password string          `json:"password" binding:"required,min=6"`
	FullName string          `json:"fullName" binding:"required"`
	Phone    string          `json:"phone"`
	Role     models.UserRole `json:"role" binding:"required"`
}

// UpdateUserRequest patches mutable user fields.
type UpdateUserRequest struct {
	FullName *string `json:"fullName"`
	Phone    *string `json:"phone"`
	Active   *bool   `json:"active"`
}

// RegisterStaffRequest is filed by a merchant; the account stays inactive
// until an admin resolves the USER_REGISTRATION approval request.
type RegisterStaffRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"fullName" binding:"required"`
	Phone    string `json:"phone"`
}
