package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
	"github.com/spec-kit/support-chat-service/internal/events"
)

// Bridge forwards the store change feed onto room broadcasts. Because the
// dispatcher delivers synchronously in commit order and each room has a
// single FIFO broadcast queue, subscribers see events in the same relative
// order they were committed.
type Bridge struct {
	hub    *Hub
	logger *zap.Logger
}

// NewBridge wires the hub into the dispatcher.
func NewBridge(hub *Hub, dispatcher events.Dispatcher, logger *zap.Logger) *Bridge {
	b := &Bridge{hub: hub, logger: logger}
	dispatcher.SubscribeAll(b.handle)
	return b
}

func (b *Bridge) handle(_ context.Context, event events.Event) error {
	frame, ok := b.frameFor(event)
	if !ok {
		return nil
	}
	b.hub.Publish(event.SessionID, frame)
	return nil
}

func (b *Bridge) frameFor(event events.Event) (Frame, bool) {
	switch payload := event.Payload.(type) {
	case events.ChatStartedPayload:
		session := payload.Session
		return BroadcastFrame(EventStarted, event.ID, dto.NewSessionResponse(&session, nil)), true
	case events.ChatMessageAddedPayload:
		msg := payload.Message
		return BroadcastFrame(EventMessage, event.ID, MessageEventPayload{
			ChatID:  event.SessionID,
			Message: dto.NewMessageResponse(&msg),
		}), true
	case events.ChatUpdatedPayload:
		session := payload.Session
		return BroadcastFrame(EventUpdated, event.ID, dto.NewSessionResponse(&session, nil)), true
	case events.ChatReadPayload:
		return BroadcastFrame(EventRead, event.ID, ReadEventPayload{
			ChatID:   event.SessionID,
			ReaderID: payload.ReaderID,
			Updated:  payload.Updated,
		}), true
	default:
		b.logger.Debug("unmapped event type", zap.String("type", string(event.Type)))
		return Frame{}, false
	}
}
