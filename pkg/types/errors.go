package types

import "errors"

// Validation errors shared across components.
var (
	ErrMissingUsername = errors.New("username is required")
	ErrMissingContent  = errors.New("content is required")
	ErrMissingRoomID   = errors.New("room_id is required")
	ErrInvalidUsername = errors.New("invalid username format")
	ErrInvalidRoomID   = errors.New("invalid room_id format")
	ErrInvalidStatus   = errors.New("invalid presence status")
	ErrContentTooLarge = errors.New("content exceeds maximum size")
)
