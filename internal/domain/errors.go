package domain

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmptyMessage     = errors.New("message has neither text nor image")
	ErrMessageTooLong   = errors.New("message too long")
	ErrDuplicateSession = errors.New("session already registered")
)
