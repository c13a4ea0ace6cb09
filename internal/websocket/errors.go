package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed   = errors.New("connection closed")
	ErrWriteTimeout       = errors.New("write timeout")
	ErrInvalidJSON        = errors.New("invalid JSON data")
	ErrConnectionTerminal = errors.New("connection in terminal state")
)

// Registry-related errors
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrNilSocket          = errors.New("socket cannot be nil")
)
