package presence

import "errors"

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidStatus = errors.New("invalid presence status")
)
