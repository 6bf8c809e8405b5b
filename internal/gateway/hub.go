package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/observability"
)

// Client is one websocket subscriber inside a room. Frames queued on Send
// are written by the connection's write pump in FIFO order.
type Client struct {
	ID          string
	SubjectType domain.SubjectType
	SubjectID   string
	Name        string
	Send        chan Frame

	room   *Room
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient builds a subscriber with a buffered send queue.
func NewClient(id string, subject domain.SubjectType, subjectID, name string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:          id,
		SubjectType: subject,
		SubjectID:   subjectID,
		Name:        name,
		Send:        make(chan Frame, buffer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Done is closed when the client is dropped from its room.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Room fans events for one session out to its subscribers. All deliveries
// for a room pass through one run loop, so subscribers observe events in
// the order they entered Broadcast, which is commit order because the
// dispatcher publishes synchronously after each store mutation. A room
// shuts down and leaves the hub once its last subscriber is gone.
type Room struct {
	ID         string
	Broadcast  chan Frame
	Unregister chan *Client

	clients  map[string]*Client
	closed   bool
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	hub      *Hub
	presence *Presence
	logger   *zap.Logger
}

func (r *Room) run() {
	for {
		select {
		case <-r.ctx.Done():
			return

		case client := <-r.Unregister:
			if r.dropClient(client) && r.tryClose() {
				return
			}

		case frame := <-r.Broadcast:
			r.mu.RLock()
			clients := make([]*Client, 0, len(r.clients))
			for _, client := range r.clients {
				clients = append(clients, client)
			}
			r.mu.RUnlock()

			dropped := false
			for _, client := range clients {
				select {
				case client.Send <- frame:
				default:
					r.logger.Warn("client send buffer full, dropping subscriber",
						zap.String("room", r.ID), zap.String("client", client.ID))
					r.dropClient(client)
					dropped = true
				}
			}
			if dropped && r.tryClose() {
				return
			}
		}
	}
}

// admit adds the client to the roster. It fails once the room has shut
// down so the caller can fetch a fresh room.
func (r *Room) admit(client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.clients[client.ID] = client
	return true
}

func (r *Room) dropClient(client *Client) bool {
	r.mu.Lock()
	if _, ok := r.clients[client.ID]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, client.ID)
	otherConn := false
	for _, c := range r.clients {
		if c.SubjectID == client.SubjectID {
			otherConn = true
			break
		}
	}
	r.mu.Unlock()

	client.cancel()
	close(client.Send)
	// keep the roster entry while another connection for the same
	// participant is still attached
	if !otherConn {
		r.presence.Remove(context.Background(), r.ID, client.SubjectID)
	}
	return true
}

// tryClose shuts the room down when no subscribers remain. Closure and
// admission serialize on mu, so a concurrent join either keeps the room
// alive or sees closed and retries against a fresh room.
func (r *Room) tryClose() bool {
	r.mu.Lock()
	if len(r.clients) > 0 {
		r.mu.Unlock()
		return false
	}
	r.closed = true
	r.mu.Unlock()

	r.hub.removeRoom(r)
	r.cancel()
	return true
}

// Online returns the current roster for the room.
func (r *Room) Online(ctx context.Context) ([]Member, error) {
	return r.presence.List(ctx, r.ID)
}

// Hub owns one room per session id.
type Hub struct {
	rooms    map[string]*Room
	mu       sync.RWMutex
	presence *Presence
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewHub creates the room manager.
func NewHub(presence *Presence, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		rooms:    make(map[string]*Room),
		presence: presence,
		logger:   logger,
		metrics:  metrics,
	}
}

// Subscribe attaches the client to the session's room, creating the room
// on first use. A room that shut down between lookup and admission is
// replaced with a fresh one.
func (h *Hub) Subscribe(sessionID string, client *Client) *Room {
	for {
		room := h.GetOrCreateRoom(sessionID)
		if !room.admit(client) {
			continue
		}
		room.presence.Add(context.Background(), sessionID, Member{
			ID:   client.SubjectID,
			Type: string(client.SubjectType),
			Name: client.Name,
		})
		return room
	}
}

// GetOrCreateRoom returns the room for a session, starting its run loop on
// first use.
func (h *Hub) GetOrCreateRoom(sessionID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[sessionID]; exists {
		return room
	}

	ctx, cancel := context.WithCancel(context.Background())
	room := &Room{
		ID:         sessionID,
		Broadcast:  make(chan Frame, 256),
		Unregister: make(chan *Client, 16),
		clients:    make(map[string]*Client),
		ctx:        ctx,
		cancel:     cancel,
		hub:        h,
		presence:   h.presence,
		logger:     h.logger,
	}
	h.rooms[sessionID] = room

	go room.run()
	return room
}

// Room returns an existing room without creating one.
func (h *Hub) Room(sessionID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[sessionID]
	return room, ok
}

func (h *Hub) removeRoom(room *Room) {
	h.mu.Lock()
	if h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
	}
	h.mu.Unlock()
}

// Publish queues a broadcast for the session's room. Sessions nobody is
// subscribed to have no room; those events only live in the store and the
// journal and are recovered over REST.
func (h *Hub) Publish(sessionID string, frame Frame) {
	room, ok := h.Room(sessionID)
	if !ok {
		return
	}
	h.metrics.RecordGatewayEvent(frame.Event)
	select {
	case room.Broadcast <- frame:
	default:
		h.logger.Warn("room broadcast buffer full, dropping event",
			zap.String("room", sessionID), zap.String("event", frame.Event))
	}
}
