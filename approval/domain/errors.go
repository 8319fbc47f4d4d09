package domain

import "errors"

var (
	ErrCredentialInvalid = errors.New("approval link is invalid")
	ErrCredentialExpired = errors.New("approval link has expired")
)
