package users

import "errors"

var (
	ErrNoData       = errors.New("no data provided")
	ErrMissingName  = errors.New("missing required field: name")
	ErrMissingEmail = errors.New("missing required field: email")
	ErrInvalidEmail = errors.New("invalid email format")
	ErrUserNotFound = errors.New("user not found")
)
