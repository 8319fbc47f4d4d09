package domain

import "errors"

var (
	ErrAlreadyHandled = errors.New("post was already handled")
	ErrNoPendingPost  = errors.New("no pending post for this approver")
	ErrReasonRequired = errors.New("a denial reason is required")
)
