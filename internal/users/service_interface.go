package users

import (
	"context"

	"github.com/WailSalutem-Health-Care/user-service/internal/pagination"
)

// ServiceInterface defines the contract for user business logic operations
type ServiceInterface interface {
	ListUsers(ctx context.Context, params pagination.Params) (*PaginatedUserListResponse, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (*User, error)
	DeleteUser(ctx context.Context, id int64) (*User, error)
}

var _ ServiceInterface = (*Service)(nil)
