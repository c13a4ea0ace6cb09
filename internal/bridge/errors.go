package bridge

import "errors"

var (
	ErrSubscriptionLost = errors.New("distribution subscription lost")
)
