package domain

import "time"

// Outcome is what one tick did with one post.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeFailed    Outcome = "failed"
	OutcomeParked    Outcome = "parked"
	OutcomeSkipped   Outcome = "skipped"
)

type PostResult struct {
	PostID   string  `json:"post_id"`
	TenantID string  `json:"tenant_id"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// TickReport summarizes a scheduler pass.
type TickReport struct {
	StartedAt time.Time    `json:"started_at"`
	Duration  string       `json:"duration"`
	Skipped   bool         `json:"skipped"`
	Tenants   int          `json:"tenants"`
	Results   []PostResult `json:"results"`
}

// Count returns how many posts ended with outcome o.
func (r TickReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}
