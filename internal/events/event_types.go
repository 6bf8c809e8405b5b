package events

import (
	"time"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventChatStarted      EventType = "chat_started"
	EventChatMessageAdded EventType = "chat_message_added"
	EventChatUpdated      EventType = "chat_updated"
	EventChatRead         EventType = "chat_read"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type       domain.SubjectType `json:"type"`
	CustomerID *string            `json:"customerId,omitempty"`
	StaffID    *string            `json:"staffId,omitempty"`
}

// Event represents a change-feed entry emitted by the chat service after a
// successful store mutation. Events for one SessionID are published in
// commit order; consumers must treat redelivery as idempotent by ID.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SessionID string      `json:"sessionId"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ChatStartedPayload payload.
type ChatStartedPayload struct {
	Session domain.ChatSession `json:"session"`
}

// ChatMessageAddedPayload payload.
type ChatMessageAddedPayload struct {
	Message domain.ChatMessage `json:"message"`
}

// ChatUpdatedPayload payload.
type ChatUpdatedPayload struct {
	Session   domain.ChatSession   `json:"session"`
	OldStatus domain.SessionStatus `json:"oldStatus"`
}

// ChatReadPayload payload.
type ChatReadPayload struct {
	ReaderID string `json:"readerId"`
	Updated  int64  `json:"updated"`
}

// CustomerActor builds an actor for a customer subject.
func CustomerActor(customerID string) Actor {
	return Actor{Type: domain.SubjectTypeCustomer, CustomerID: &customerID}
}

// StaffActor builds an actor for a staff subject.
func StaffActor(staffID string) Actor {
	return Actor{Type: domain.SubjectTypeStaff, StaffID: &staffID}
}
