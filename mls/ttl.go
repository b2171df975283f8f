package mls

import "time"

// TTLPolicy assigns cache freshness by listing status: active listings churn
// in minutes, pending ones settle over hours, terminal statuses rarely move
// at all. Both the interactive path and the sync engine write through this
// policy so there is one source of truth.
type TTLPolicy struct {
	Active   time.Duration
	Pending  time.Duration
	Terminal time.Duration
	Search   time.Duration
	Negative time.Duration
}

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Active:   5 * time.Minute,
		Pending:  30 * time.Minute,
		Terminal: 20 * time.Hour,
		Search:   2 * time.Minute,
		Negative: 60 * time.Second,
	}
}

func (p TTLPolicy) ForStatus(s StandardStatus) time.Duration {
	switch {
	case s.Terminal():
		return p.Terminal
	case s == StatusActive || s == "":
		return p.Active
	default:
		return p.Pending
	}
}
