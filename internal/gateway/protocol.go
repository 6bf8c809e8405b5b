package gateway

import (
	"encoding/json"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
)

// Client-to-server events. Each request frame carries a client-generated
// correlation id; the reply (ack or error) echoes it back so the sender can
// reconcile its optimistic copy.
const (
	EventStart    = "chat:start"
	EventSend     = "chat:send"
	EventMarkRead = "chat:markRead"
)

// Server-to-client events.
const (
	EventAck     = "chat:ack"
	EventError   = "chat:error"
	EventInit    = "chat:init"
	EventStarted = "chat:started"
	EventMessage = "chat:message"
	EventUpdated = "chat:updated"
	EventRead    = "chat:read"
)

// Frame is the envelope for every websocket message in both directions.
// EventID is set on broadcasts so redelivery after a reconnect can be
// deduplicated; CID correlates request/ack pairs.
type Frame struct {
	Event   string          `json:"event"`
	CID     string          `json:"cid,omitempty"`
	EventID string          `json:"eventId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload carries a failure back to the requesting client.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// InitPayload is pushed once after a room join.
type InitPayload struct {
	ChatID string   `json:"chatId"`
	Online []Member `json:"online"`
}

// MessageEventPayload is broadcast for chat:message.
type MessageEventPayload struct {
	ChatID  string              `json:"chatId"`
	Message dto.MessageResponse `json:"message"`
}

// ReadEventPayload is broadcast for chat:read.
type ReadEventPayload struct {
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
	Updated  int64  `json:"updated"`
}

func mustFrame(event, cid, eventID string, payload any) Frame {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	return Frame{Event: event, CID: cid, EventID: eventID, Payload: raw}
}

// AckFrame builds an acknowledge for a request frame.
func AckFrame(cid string, payload any) Frame {
	return mustFrame(EventAck, cid, "", payload)
}

// ErrorFrame builds an error reply for a request frame.
func ErrorFrame(cid, code, message string) Frame {
	return mustFrame(EventError, cid, "", ErrorPayload{Code: code, Message: message})
}

// BroadcastFrame builds a room broadcast with an idempotency id.
func BroadcastFrame(event, eventID string, payload any) Frame {
	return mustFrame(event, "", eventID, payload)
}
