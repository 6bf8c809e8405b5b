package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
	"github.com/spec-kit/support-chat-service/internal/gateway"
)

const (
	defaultSendTimeout = 10 * time.Second
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10

	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second

	// oldest entries are evicted past this many remembered broadcast ids
	seenLimit = 1024
)

// Handlers receive pushed events. All callbacks run on the read loop
// goroutine and must not block.
type Handlers struct {
	OnMessage func(Message)
	OnRead    func(readerID string, updated int64)
	OnSession func(Session)
}

// Options configures a Client.
type Options struct {
	// BaseURL of the HTTP surface, e.g. "http://localhost:8080".
	BaseURL string
	// Token is the bearer token for both transports.
	Token string
	// ChatID of the session to join; may be empty until StartSession.
	ChatID string
	// Sender is "customer" or "staff"; SenderID the caller's id. Used
	// only for optimistic staging, the server derives identity from the
	// token.
	Sender   string
	SenderID string
	// SendTimeout bounds the wait for an acknowledge.
	SendTimeout time.Duration
	Handlers    Handlers
	Logger      *zap.Logger
}

// Client joins one chat session over the websocket push channel, keeps an
// optimistic local view, and falls back to HTTP when the socket is down.
type Client struct {
	opts    Options
	rest    *RESTClient
	recon   *Reconciler
	tracker *ReadTracker
	logger  *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan gateway.Frame
	seen    map[string]struct{}
	seenIDs []string
	chatID  string
	closed  bool
	done    chan struct{}

	writeMu sync.Mutex
}

// New builds a client. Call Connect to open the push channel; REST calls
// work without it.
func New(opts Options) *Client {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Client{
		opts:    opts,
		rest:    NewRESTClient(opts.BaseURL, opts.Token, nil),
		recon:   NewReconciler(nil),
		logger:  opts.Logger,
		pending: make(map[string]chan gateway.Frame),
		seen:    make(map[string]struct{}),
		chatID:  opts.ChatID,
		done:    make(chan struct{}),
	}
	c.tracker = NewReadTracker(c.markRead)
	return c
}

// Reconciler exposes the local message view.
func (c *Client) Reconciler() *Reconciler { return c.recon }

// Tracker exposes the read-receipt tracker.
func (c *Client) Tracker() *ReadTracker { return c.tracker }

// ChatID returns the joined session id, empty before StartSession.
func (c *Client) ChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

// Connect dials the push channel and starts the read and ping loops. A
// broken connection is redialed with backoff until Close.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.pingLoop(conn)
	return nil
}

// Close tears down the connection and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// StartSession opens a chat for an order, preferring the push channel. On
// conflict the existing active session should be fetched instead.
func (c *Client) StartSession(ctx context.Context, req dto.CreateSessionRequest) (*Session, error) {
	frame, err := c.request(ctx, gateway.EventStart, req)
	if errors.Is(err, ErrTransportUnavailable) {
		session, restErr := c.rest.CreateSession(ctx, req)
		if restErr != nil {
			return nil, restErr
		}
		c.adoptSession(session)
		return session, nil
	}
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(frame.Payload, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	c.adoptSession(&session)
	return &session, nil
}

// Send stages the message optimistically, then confirms it over whichever
// transport is live. On timeout the staged entry is rolled back and
// ErrSendFailed returned; the caller decides whether to retry.
func (c *Client) Send(ctx context.Context, content string) (*Message, error) {
	chatID := c.ChatID()
	if chatID == "" {
		return nil, fmt.Errorf("chatclient: no session joined")
	}

	cid := uuid.NewString()
	c.recon.Stage(cid, chatID, c.opts.Sender, c.opts.SenderID, content)

	req := dto.AppendMessageRequest{ChatID: chatID, Content: content}
	frame, err := c.requestWithCID(ctx, cid, gateway.EventSend, req)
	if errors.Is(err, ErrTransportUnavailable) {
		msg, restErr := c.rest.AppendMessage(ctx, req)
		if restErr != nil {
			c.recon.Reject(cid)
			return nil, restErr
		}
		c.recon.Resolve(cid, *msg)
		return msg, nil
	}
	if err != nil {
		c.recon.Reject(cid)
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(frame.Payload, &msg); err != nil {
		c.recon.Reject(cid)
		return nil, fmt.Errorf("decode message: %w", err)
	}
	c.recon.Resolve(cid, msg)
	return &msg, nil
}

// SetFocus drives the read tracker; gaining focus marks the counterpart's
// messages as read.
func (c *Client) SetFocus(ctx context.Context, focused bool) error {
	_, err := c.tracker.SetFocus(ctx, focused)
	return err
}

// Rehydrate reloads the session over HTTP and swaps the local view,
// keeping unresolved optimistic entries.
func (c *Client) Rehydrate(ctx context.Context) (*Session, error) {
	chatID := c.ChatID()
	if chatID == "" {
		return nil, fmt.Errorf("chatclient: no session joined")
	}
	session, err := c.rest.GetSession(ctx, chatID)
	if err != nil {
		return nil, err
	}
	c.recon.Replace(session.Messages)
	return session, nil
}

func (c *Client) adoptSession(session *Session) {
	c.mu.Lock()
	c.chatID = session.ID
	c.mu.Unlock()
	c.recon.Replace(session.Messages)
}

func (c *Client) markRead(ctx context.Context) (bool, error) {
	chatID := c.ChatID()
	if chatID == "" {
		return false, nil
	}
	req := dto.MarkReadRequest{ChatID: chatID}
	frame, err := c.request(ctx, gateway.EventMarkRead, req)
	if errors.Is(err, ErrTransportUnavailable) {
		resp, restErr := c.rest.MarkRead(ctx, chatID)
		if restErr != nil {
			return false, restErr
		}
		return resp.Updated, nil
	}
	if err != nil {
		return false, err
	}
	var resp dto.MarkReadResponse
	if err := json.Unmarshal(frame.Payload, &resp); err != nil {
		return false, fmt.Errorf("decode mark-read: %w", err)
	}
	return resp.Updated, nil
}

func (c *Client) request(ctx context.Context, event string, payload any) (gateway.Frame, error) {
	return c.requestWithCID(ctx, uuid.NewString(), event, payload)
}

// requestWithCID writes a request frame and waits for the correlated ack
// or error frame.
func (c *Client) requestWithCID(ctx context.Context, cid, event string, payload any) (gateway.Frame, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return gateway.Frame{}, ErrTransportUnavailable
	}
	ack := make(chan gateway.Frame, 1)
	c.pending[cid] = ack
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, cid)
		c.mu.Unlock()
	}()

	raw, err := json.Marshal(payload)
	if err != nil {
		return gateway.Frame{}, fmt.Errorf("encode payload: %w", err)
	}
	if err := c.writeFrame(conn, gateway.Frame{Event: event, CID: cid, Payload: raw}); err != nil {
		return gateway.Frame{}, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	timer := time.NewTimer(c.opts.SendTimeout)
	defer timer.Stop()
	select {
	case frame := <-ack:
		if frame.Event == gateway.EventError {
			return gateway.Frame{}, errorFromFrame(frame)
		}
		return frame, nil
	case <-timer.C:
		return gateway.Frame{}, ErrSendFailed
	case <-ctx.Done():
		return gateway.Frame{}, ctx.Err()
	case <-c.done:
		return gateway.Frame{}, ErrTransportUnavailable
	}
}

func errorFromFrame(frame gateway.Frame) error {
	var payload gateway.ErrorPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return &APIError{Code: "INTERNAL_ERROR", Message: "malformed error frame"}
	}
	return &APIError{Code: payload.Code, Message: payload.Message}
}

func (c *Client) writeFrame(conn *websocket.Conn, frame gateway.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	endpoint.Path = "/ws/support-chat"
	query := endpoint.Query()
	query.Set("token", c.opts.Token)
	if chatID := c.ChatID(); chatID != "" {
		query.Set("chatId", chatID)
	}
	endpoint.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return conn, nil
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame gateway.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			conn.Close()
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Warn("push channel lost, reconnecting", zap.Error(err))
				go c.reconnect()
			}
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame gateway.Frame) {
	// replies route to the waiting request
	if frame.CID != "" {
		c.mu.Lock()
		ack, ok := c.pending[frame.CID]
		c.mu.Unlock()
		if ok {
			select {
			case ack <- frame:
			default:
			}
		}
		return
	}

	// broadcasts may be redelivered after a reconnect
	if frame.EventID != "" {
		c.mu.Lock()
		if _, dup := c.seen[frame.EventID]; dup {
			c.mu.Unlock()
			return
		}
		c.seen[frame.EventID] = struct{}{}
		c.seenIDs = append(c.seenIDs, frame.EventID)
		if len(c.seenIDs) > seenLimit {
			delete(c.seen, c.seenIDs[0])
			c.seenIDs = c.seenIDs[1:]
		}
		c.mu.Unlock()
	}

	switch frame.Event {
	case gateway.EventMessage:
		var payload gateway.MessageEventPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			c.logger.Warn("malformed message event", zap.Error(err))
			return
		}
		c.recon.Apply(payload.Message)
		if payload.Message.SenderID != c.opts.SenderID {
			// the mark-read request waits for its own ack, which this read
			// loop consumes; issuing it here would block the loop on itself
			go func() {
				if _, err := c.tracker.OnInbound(context.Background()); err != nil {
					c.logger.Warn("mark read failed", zap.Error(err))
				}
			}()
		}
		if c.opts.Handlers.OnMessage != nil {
			c.opts.Handlers.OnMessage(payload.Message)
		}
	case gateway.EventRead:
		var payload gateway.ReadEventPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			c.logger.Warn("malformed read event", zap.Error(err))
			return
		}
		c.recon.ApplyRead(payload.ReaderID)
		if c.opts.Handlers.OnRead != nil {
			c.opts.Handlers.OnRead(payload.ReaderID, payload.Updated)
		}
	case gateway.EventStarted, gateway.EventUpdated:
		var session Session
		if err := json.Unmarshal(frame.Payload, &session); err != nil {
			c.logger.Warn("malformed session event", zap.Error(err))
			return
		}
		if c.opts.Handlers.OnSession != nil {
			c.opts.Handlers.OnSession(session)
		}
	case gateway.EventInit:
		// roster push on join; surfaced via Rehydrate instead
	default:
		c.logger.Debug("ignoring frame", zap.String("event", frame.Event))
	}
}

// reconnect redials with capped exponential backoff, then reloads history
// over HTTP so anything missed while offline is merged back in.
func (c *Client) reconnect() {
	backoff := reconnectBase
	for {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Debug("redial failed", zap.Error(err))
			if backoff *= 2; backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		go c.readLoop(conn)
		go c.pingLoop(conn)

		ctx, cancel = context.WithTimeout(context.Background(), writeWait)
		if _, err := c.Rehydrate(ctx); err != nil {
			c.logger.Warn("rehydrate after reconnect failed", zap.Error(err))
		}
		cancel()
		return
	}
}
