package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
	"github.com/spec-kit/support-chat-service/internal/auth"
	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/observability"
	"github.com/spec-kit/support-chat-service/internal/service"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Handler terminates websocket connections and maps request frames onto the
// chat service. The store is always written first; the sender gets the
// canonical record back on its ack, then the change feed broadcasts it.
type Handler struct {
	chat    *service.ChatService
	hub     *Hub
	logger  *zap.Logger
	metrics *observability.Metrics
	buffer  int
}

// NewHandler constructs the gateway handler.
func NewHandler(chat *service.ChatService, hub *Hub, logger *zap.Logger, metrics *observability.Metrics, buffer int) *Handler {
	return &Handler{chat: chat, hub: hub, logger: logger, metrics: metrics, buffer: buffer}
}

// Upgrade gates the route to websocket requests.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle runs one connection: the calling goroutine reads request frames,
// a second goroutine drains the client queue onto the socket.
func (h *Handler) Handle(conn *websocket.Conn) {
	principal, ok := conn.Locals(auth.PrincipalLocalKey).(*auth.Principal)
	if !ok || principal == nil {
		_ = conn.Close()
		return
	}

	client := NewClient(uuid.NewString(), principal.SubjectType, principal.SubjectID(), principalName(principal), h.buffer)
	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	if chatID := conn.Query("chatId"); chatID != "" {
		if err := h.join(context.Background(), client, principal, chatID); err != nil {
			h.writeDirect(conn, errorFrameFor("", err))
			_ = conn.Close()
			return
		}
	}

	go h.writePump(conn, client)
	h.readLoop(conn, client, principal)
}

func (h *Handler) readLoop(conn *websocket.Conn, client *Client, principal *auth.Principal) {
	defer func() {
		h.leave(client)
		client.cancel()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		h.dispatch(client, principal, frame)
	}
}

func (h *Handler) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-client.Done():
			return

		case frame, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) dispatch(client *Client, principal *auth.Principal, frame Frame) {
	ctx := context.Background()
	switch frame.Event {
	case EventStart:
		h.handleStart(ctx, client, principal, frame)
	case EventSend:
		h.handleSend(ctx, client, principal, frame)
	case EventMarkRead:
		h.handleMarkRead(ctx, client, principal, frame)
	default:
		h.reply(client, ErrorFrame(frame.CID, "VALIDATION_FAILED", "unknown event"))
	}
}

func (h *Handler) handleStart(ctx context.Context, client *Client, principal *auth.Principal, frame Frame) {
	if principal.SubjectType != domain.SubjectTypeCustomer || principal.Customer == nil {
		h.reply(client, ErrorFrame(frame.CID, "FORBIDDEN", "only customers start sessions"))
		return
	}
	var req dto.CreateSessionRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		h.reply(client, ErrorFrame(frame.CID, "VALIDATION_FAILED", "invalid payload"))
		return
	}

	session, err := h.chat.CreateSession(ctx, service.SessionCreateInput{
		OrderID:    req.OrderID,
		CustomerID: principal.Customer.ID,
		Issue:      req.Issue,
		Category:   req.Category,
	})
	if err != nil {
		h.reply(client, errorFrameFor(frame.CID, err))
		return
	}

	// the ack carries the canonical session before any broadcast arrives
	h.reply(client, AckFrame(frame.CID, dto.NewSessionResponse(session, nil)))
	if err := h.join(ctx, client, principal, session.ID); err != nil {
		h.reply(client, errorFrameFor("", err))
	}
}

func (h *Handler) handleSend(ctx context.Context, client *Client, principal *auth.Principal, frame Frame) {
	var req dto.AppendMessageRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		h.reply(client, ErrorFrame(frame.CID, "VALIDATION_FAILED", "invalid payload"))
		return
	}
	chatID := req.ChatID
	if chatID == "" && client.room != nil {
		chatID = client.room.ID
	}

	if err := h.authorize(ctx, principal, chatID); err != nil {
		h.reply(client, errorFrameFor(frame.CID, err))
		return
	}

	msg, err := h.chat.AppendMessage(ctx, service.MessageInput{
		SessionID: chatID,
		Sender:    senderFor(principal),
		SenderID:  principal.SubjectID(),
		Content:   req.Content,
	})
	if err != nil {
		h.reply(client, errorFrameFor(frame.CID, err))
		return
	}
	h.reply(client, AckFrame(frame.CID, dto.NewMessageResponse(msg)))
}

func (h *Handler) handleMarkRead(ctx context.Context, client *Client, principal *auth.Principal, frame Frame) {
	var req dto.MarkReadRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		h.reply(client, ErrorFrame(frame.CID, "VALIDATION_FAILED", "invalid payload"))
		return
	}
	chatID := req.ChatID
	if chatID == "" && client.room != nil {
		chatID = client.room.ID
	}

	if err := h.authorize(ctx, principal, chatID); err != nil {
		h.reply(client, errorFrameFor(frame.CID, err))
		return
	}

	updated, err := h.chat.MarkRead(ctx, chatID, principal.SubjectID())
	if err != nil {
		h.reply(client, errorFrameFor(frame.CID, err))
		return
	}
	h.reply(client, AckFrame(frame.CID, dto.MarkReadResponse{Updated: updated > 0, Count: updated}))
}

// join attaches the client to the session's room and pushes the roster.
func (h *Handler) join(ctx context.Context, client *Client, principal *auth.Principal, chatID string) error {
	if err := h.authorize(ctx, principal, chatID); err != nil {
		return err
	}

	room := h.hub.Subscribe(chatID, client)
	client.room = room

	online, err := room.Online(ctx)
	if err != nil {
		h.logger.Warn("presence lookup failed", zap.String("room", chatID), zap.Error(err))
		online = []Member{}
	}
	h.reply(client, BroadcastFrame(EventInit, uuid.NewString(), InitPayload{ChatID: chatID, Online: online}))
	return nil
}

func (h *Handler) leave(client *Client) {
	if client.room == nil {
		return
	}
	select {
	case client.room.Unregister <- client:
	case <-time.After(writeWait):
		h.logger.Warn("room unregister timed out", zap.String("room", client.room.ID))
	}
}

func (h *Handler) authorize(ctx context.Context, principal *auth.Principal, chatID string) error {
	if chatID == "" {
		return apperrors.NewValidationError("chatId required", nil)
	}
	session, _, err := h.chat.GetSession(ctx, chatID)
	if err != nil {
		return err
	}
	return service.AuthorizeParticipant(session, principal.SubjectType, principal.SubjectID())
}

func (h *Handler) reply(client *Client, frame Frame) {
	select {
	case client.Send <- frame:
	case <-client.Done():
	}
}

func (h *Handler) writeDirect(conn *websocket.Conn, frame Frame) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(frame)
}

// Online GET /support-chat/:id/online returns the room roster over REST
// for surfaces without a live subscription.
func (h *Handler) Online(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	chatID := c.Params("id")
	if err := h.authorize(c.Context(), principal, chatID); err != nil {
		return err
	}
	online, err := h.hub.presence.List(c.Context(), chatID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"chatId": chatID,
		"count":  len(online),
		"online": online,
	}})
}

func errorFrameFor(cid string, err error) Frame {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return ErrorFrame(cid, domainErr.Code, domainErr.Message)
	}
	return ErrorFrame(cid, "INTERNAL_ERROR", "internal server error")
}

func senderFor(principal *auth.Principal) domain.SenderType {
	if principal.SubjectType == domain.SubjectTypeStaff {
		return domain.SenderStaff
	}
	return domain.SenderCustomer
}

func principalName(principal *auth.Principal) string {
	switch {
	case principal.Customer != nil:
		return principal.Customer.Name
	case principal.Staff != nil:
		return principal.Staff.Name
	}
	return ""
}
