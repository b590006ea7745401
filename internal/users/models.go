package users

import (
	"strings"
	"time"

	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/user-service/internal/pagination"
)

// User represents a user in the system
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// EventData is the copy of the user carried in published events.
func (u *User) EventData() messaging.UserData {
	return messaging.UserData{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}

// CreateUserRequest represents the request to create a new user
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UpdateUserRequest represents the request to update a user. Omitted fields
// keep their current value.
type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Role  *string `json:"role,omitempty"`
}

// Validate validates the create user request
func (r *CreateUserRequest) Validate() error {
	if r.Name == "" {
		return ErrMissingName
	}
	if r.Email == "" {
		return ErrMissingEmail
	}
	if !validEmail(r.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// Validate rejects empty updates and malformed emails.
func (r *UpdateUserRequest) Validate() error {
	if r.Name == nil && r.Email == nil && r.Role == nil {
		return ErrNoData
	}
	if r.Name != nil && *r.Name == "" {
		return ErrMissingName
	}
	if r.Email != nil && !validEmail(*r.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// Apply copies the set fields onto user.
func (r *UpdateUserRequest) Apply(user *User) {
	if r.Name != nil {
		user.Name = *r.Name
	}
	if r.Email != nil {
		user.Email = *r.Email
	}
	if r.Role != nil {
		user.Role = *r.Role
	}
}

func validEmail(email string) bool {
	return strings.Contains(email, "@")
}

// PaginatedUserListResponse represents a paginated list of users
type PaginatedUserListResponse struct {
	Users      []User          `json:"users"`
	Count      int             `json:"count"`
	Pagination pagination.Meta `json:"pagination"`
}
