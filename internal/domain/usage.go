package domain

import "time"

// UsageCounter tracks one subject's message count inside the current
// rate-limit window of one session.
type UsageCounter struct {
	MessageCount int
	WindowStart  time.Time
	LastSeen     time.Time
}

// Expired reports whether the counter's window has elapsed for the given
// period. An expired counter is reset, not incremented, on the next commit.
func (u UsageCounter) Expired(p Period, now time.Time) bool {
	return now.Sub(u.WindowStart) >= p.Duration()
}

// Exchange is one persisted message of a completed request, two records per
// request (user message, assistant reply). Append-only.
type Exchange struct {
	SessionID int64
	SubjectID string
	Role      Role
	Content   string
	CreatedAt time.Time
}
