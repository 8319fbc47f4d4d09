package domain

import "errors"

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSequenceConflict  = errors.New("tenant sequence conflict")
)
