package domain

import "errors"

var (
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrApproverNotFound    = errors.New("no approver configured for tenant")
	ErrApproverUnreachable = errors.New("approver has no phone or chat id")
	ErrDuplicateIdentity   = errors.New("identity already registered")
	ErrNotApprover         = errors.New("identity is not an approver")
)
