package interfaces

import "errors"

// Collaborator errors surfaced across interface boundaries.
var (
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAIUnavailable      = errors.New("AI responder not configured")
	ErrUploadRejected     = errors.New("upload not authorized")
)
