package database

import "errors"

var (
	ErrStoreClosed = errors.New("message store closed")
)
