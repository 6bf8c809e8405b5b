package domain

import "time"

// SessionStatus enumerates lifecycle states for support-chat sessions.
type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusResolved SessionStatus = "resolved"
	SessionStatusClosed   SessionStatus = "closed"
)

// ChatSession is the aggregate for one customer-support conversation,
// always scoped to a single order.
type ChatSession struct {
	ID            string
	OrderID       string
	CustomerID    string
	Category      string
	Issue         string
	Status        SessionStatus
	LastMessageAt time.Time
	CreatedAt     time.Time
	ResolvedAt    *time.Time
	ResolvedBy    *string
}

// Active reports whether the session still accepts messages.
func (s *ChatSession) Active() bool {
	return s.Status == SessionStatusActive
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusActive:   {SessionStatusResolved, SessionStatusClosed},
	SessionStatusResolved: {SessionStatusClosed, SessionStatusActive},
	SessionStatusClosed:   {},
}

// ValidTransition reports whether a status change is allowed. Closed is
// terminal; resolved sessions may be reopened or closed.
func ValidTransition(current, next SessionStatus) bool {
	for _, candidate := range sessionTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidStatus reports whether the value is a known session status.
func ValidStatus(status SessionStatus) bool {
	switch status {
	case SessionStatusActive, SessionStatusResolved, SessionStatusClosed:
		return true
	}
	return false
}
