package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/observability"
)

func newTestHub() *Hub {
	logger := zap.NewNop()
	return NewHub(NewPresence(nil, 0, logger), logger, observability.NewMetrics())
}

func subscribe(t *testing.T, hub *Hub, sessionID string, client *Client) *Room {
	t.Helper()
	room := hub.Subscribe(sessionID, client)
	room.mu.RLock()
	_, ok := room.clients[client.ID]
	room.mu.RUnlock()
	require.True(t, ok)
	return room
}

func recvFrame(t *testing.T, client *Client) Frame {
	t.Helper()
	select {
	case frame := <-client.Send:
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestRoomDeliveryPreservesOrder(t *testing.T) {
	hub := newTestHub()

	customer := NewClient("conn-1", domain.SubjectTypeCustomer, "cust-1", "Dana", 16)
	staff := NewClient("conn-2", domain.SubjectTypeStaff, "staff-1", "Robin", 16)
	subscribe(t, hub, "sess-1", customer)
	subscribe(t, hub, "sess-1", staff)

	const n = 20
	for i := 0; i < n; i++ {
		hub.Publish("sess-1", BroadcastFrame(EventMessage, fmt.Sprintf("evt-%d", i), map[string]int{"seq": i}))
	}

	for _, client := range []*Client{customer, staff} {
		for i := 0; i < n; i++ {
			frame := recvFrame(t, client)
			assert.Equal(t, fmt.Sprintf("evt-%d", i), frame.EventID)

			var payload map[string]int
			require.NoError(t, json.Unmarshal(frame.Payload, &payload))
			assert.Equal(t, i, payload["seq"])
		}
	}
}

func TestPublishWithoutRoomIsDropped(t *testing.T) {
	hub := newTestHub()
	// no subscribers ever joined this session, so there is no room
	hub.Publish("sess-ghost", BroadcastFrame(EventMessage, "evt-1", nil))

	_, ok := hub.Room("sess-ghost")
	assert.False(t, ok)
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := newTestHub()

	slow := NewClient("conn-slow", domain.SubjectTypeCustomer, "cust-1", "Dana", 1)
	healthy := NewClient("conn-ok", domain.SubjectTypeStaff, "staff-1", "Robin", 64)
	subscribe(t, hub, "sess-1", slow)
	subscribe(t, hub, "sess-1", healthy)

	// the slow client never drains; its one-slot buffer overflows on the
	// second frame and the room unregisters it
	for i := 0; i < 5; i++ {
		hub.Publish("sess-1", BroadcastFrame(EventMessage, fmt.Sprintf("evt-%d", i), nil))
	}

	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}

	for i := 0; i < 5; i++ {
		frame := recvFrame(t, healthy)
		assert.Equal(t, fmt.Sprintf("evt-%d", i), frame.EventID)
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := newTestHub()

	client := NewClient("conn-1", domain.SubjectTypeCustomer, "cust-1", "Dana", 16)
	room := subscribe(t, hub, "sess-1", client)

	room.Unregister <- client

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client context not cancelled")
	}

	require.Eventually(t, func() bool {
		select {
		case _, open := <-client.Send:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestEmptyRoomIsReaped(t *testing.T) {
	hub := newTestHub()

	client := NewClient("conn-1", domain.SubjectTypeCustomer, "cust-1", "Dana", 16)
	room := subscribe(t, hub, "sess-1", client)
	room.Unregister <- client

	require.Eventually(t, func() bool {
		_, ok := hub.Room("sess-1")
		return !ok
	}, time.Second, 5*time.Millisecond)

	// a later subscriber gets a fresh room, not the retired one
	next := NewClient("conn-2", domain.SubjectTypeCustomer, "cust-1", "Dana", 16)
	fresh := subscribe(t, hub, "sess-1", next)
	assert.NotSame(t, room, fresh)
}

func TestBroadcastDropsManySlowClientsAtOnce(t *testing.T) {
	hub := newTestHub()

	// more overflowing subscribers in a single fan-out than the Unregister
	// queue could ever hold
	const n = 24
	clients := make([]*Client, 0, n)
	for i := 0; i < n; i++ {
		client := NewClient(fmt.Sprintf("conn-%d", i), domain.SubjectTypeCustomer, fmt.Sprintf("cust-%d", i), "Dana", 1)
		subscribe(t, hub, "sess-1", client)
		clients = append(clients, client)
	}

	// first frame fills every one-slot buffer, second overflows them all
	hub.Publish("sess-1", BroadcastFrame(EventMessage, "evt-0", nil))
	hub.Publish("sess-1", BroadcastFrame(EventMessage, "evt-1", nil))

	for _, client := range clients {
		select {
		case <-client.Done():
		case <-time.After(time.Second):
			t.Fatal("slow client was not dropped")
		}
	}

	require.Eventually(t, func() bool {
		_, ok := hub.Room("sess-1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestGetOrCreateRoomReturnsSameRoom(t *testing.T) {
	hub := newTestHub()
	first := hub.GetOrCreateRoom("sess-1")
	second := hub.GetOrCreateRoom("sess-1")
	assert.Same(t, first, second)

	found, ok := hub.Room("sess-1")
	require.True(t, ok)
	assert.Same(t, first, found)
}

func TestBridgeMapsChangeFeedToFrames(t *testing.T) {
	hub := newTestHub()
	client := NewClient("conn-1", domain.SubjectTypeCustomer, "cust-1", "Dana", 16)
	subscribe(t, hub, "sess-1", client)

	dispatcher := events.NewInMemoryDispatcher()
	NewBridge(hub, dispatcher, zap.NewNop())
	ctx := context.Background()

	msg := domain.ChatMessage{ID: "msg-1", SessionID: "sess-1", Sender: domain.SenderStaff, SenderID: "staff-1", Content: "hello"}
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		ID:        "evt-1",
		Type:      events.EventChatMessageAdded,
		SessionID: "sess-1",
		Payload:   events.ChatMessageAddedPayload{Message: msg},
	}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		ID:        "evt-2",
		Type:      events.EventChatRead,
		SessionID: "sess-1",
		Payload:   events.ChatReadPayload{ReaderID: "cust-1", Updated: 1},
	}))

	frame := recvFrame(t, client)
	assert.Equal(t, EventMessage, frame.Event)
	assert.Equal(t, "evt-1", frame.EventID)
	var msgPayload MessageEventPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &msgPayload))
	assert.Equal(t, "msg-1", msgPayload.Message.ID)
	assert.Equal(t, "sess-1", msgPayload.ChatID)

	frame = recvFrame(t, client)
	assert.Equal(t, EventRead, frame.Event)
	var readPayload ReadEventPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &readPayload))
	assert.Equal(t, "cust-1", readPayload.ReaderID)
	assert.Equal(t, int64(1), readPayload.Updated)
}
