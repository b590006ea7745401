package users

import "context"

// RepositoryInterface defines the contract for user data access
type RepositoryInterface interface {
	ListWithPagination(ctx context.Context, limit, offset int) ([]User, int, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id int64) error
}

// Ensure Repository implements RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)
