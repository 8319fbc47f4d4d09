package domain

// Status is the lifecycle position of a post.
type Status string

const (
	StatusManagerPending       Status = "manager_pending"
	StatusManagerApproved      Status = "manager_approved"
	StatusQueued               Status = "queued"
	StatusAwaitingDenialReason Status = "awaiting_denial_reason"
	StatusPublished            Status = "published"
	StatusDenied               Status = "denied"
	StatusCancelled            Status = "cancelled"
	// StatusFailed parks a post that cannot be retried automatically (missing credentials).
	StatusFailed Status = "failed"
)

var transitions = map[Status][]Status{
	StatusManagerPending:       {StatusManagerApproved, StatusAwaitingDenialReason, StatusCancelled},
	StatusAwaitingDenialReason: {StatusDenied},
	StatusManagerApproved:      {StatusQueued, StatusPublished, StatusManagerApproved, StatusCancelled, StatusFailed},
	StatusQueued:               {StatusPublished, StatusManagerApproved, StatusCancelled, StatusFailed},
	StatusFailed:               {StatusManagerApproved, StatusCancelled},
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusDenied || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusManagerPending, StatusManagerApproved, StatusQueued, StatusAwaitingDenialReason,
		StatusPublished, StatusDenied, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CancellableStatuses are the statuses a contributor may cancel from.
func CancellableStatuses() []Status {
	return []Status{StatusManagerPending, StatusManagerApproved, StatusQueued}
}
