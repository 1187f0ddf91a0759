package membership

import "time"

const dateLayout = "2006-01-02"

// ===== Requests =====

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ===== Responses =====

type UserResponse struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	DateOfMembership string    `json:"date_of_membership"`
	IsActive         bool      `json:"is_active"`
	IsStaff          bool      `json:"is_staff"`
	CreatedAt        time.Time `json:"created_at"`
}

type ListUsersResult struct {
	Items      []UserResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"next_offset"`
}

func toResponse(u *User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		DateOfMembership: u.DateOfMembership.Format(dateLayout),
		IsActive:         u.IsActive,
		IsStaff:          u.IsStaff,
		CreatedAt:        u.CreatedAt,
	}
}
