package dispatch

import "errors"

// Dispatcher-specific error types.
var (
	ErrAIResponderMissing = errors.New("AI responder not configured")
	ErrFileServiceMissing = errors.New("file service not configured")
)
