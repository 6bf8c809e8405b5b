package domain

import "time"

// SenderType indicates which side of the conversation authored a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderStaff    SenderType = "staff"
)

// MaxMessageLength bounds message content size.
const MaxMessageLength = 2000

// ChatMessage is one entry in a session's append-only message sequence.
// Once persisted only Read may change, and only from false to true.
type ChatMessage struct {
	ID        string
	SessionID string
	Sender    SenderType
	SenderID  string
	Content   string
	Timestamp time.Time
	Read      bool

	// Seq is the store-assigned commit position within the session.
	Seq int64
}

// ValidSender reports whether the value is a known sender type.
func ValidSender(sender SenderType) bool {
	return sender == SenderCustomer || sender == SenderStaff
}
