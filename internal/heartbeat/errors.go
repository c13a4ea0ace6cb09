package heartbeat

import "errors"

var (
	ErrAlreadyRunning = errors.New("heartbeat supervisor is already running")
	ErrNotRunning     = errors.New("heartbeat supervisor is not running")
)
