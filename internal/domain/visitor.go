package domain

import (
	"time"
)

// Visitor is the anonymous browser that owns a set of chat records.
type Visitor struct {
	VisitorID   string    `json:"visitor_id"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// IdleFor returns how long the visitor has been inactive as of now.
func (v *Visitor) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(v.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}

// Expired reports whether the visitor has been idle longer than ttl.
func (v *Visitor) Expired(now time.Time, ttl time.Duration) bool {
	return v.IdleFor(now) > ttl
}
