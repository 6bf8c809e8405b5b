package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/events"
	"github.com/spec-kit/support-chat-service/internal/repository"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// ChatService coordinates the order-support chat workflows. Every
// successful mutation is pushed onto the dispatcher in commit order, which
// is what the push gateway and journal consume as the change feed.
type ChatService struct {
	sessions   repository.ChatSessionRepository
	messages   repository.ChatMessageRepository
	customers  repository.CustomerRepository
	orders     repository.OrderRepository
	dispatcher events.Dispatcher
}

// ChatDependencies bundles repositories for the chat service.
type ChatDependencies struct {
	SessionRepo  repository.ChatSessionRepository
	MessageRepo  repository.ChatMessageRepository
	CustomerRepo repository.CustomerRepository
	OrderRepo    repository.OrderRepository
	Dispatcher   events.Dispatcher
}

// SessionCreateInput describes session creation payload.
type SessionCreateInput struct {
	OrderID    string
	CustomerID string
	Issue      string
	Category   string
}

// MessageInput describes a message append.
type MessageInput struct {
	SessionID string
	Sender    domain.SenderType
	SenderID  string
	Content   string
}

// SessionListFilter describes listing parameters for the fallback loader.
type SessionListFilter struct {
	CustomerID *string
	OrderID    *string
	Limit      int
	Offset     int
}

// EnrichedSession pairs a session with denormalized customer and order
// summaries for admin listings.
type EnrichedSession struct {
	Session  domain.ChatSession
	Customer domain.CustomerDetails
	Order    domain.OrderDetails
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	return &ChatService{
		sessions:   deps.SessionRepo,
		messages:   deps.MessageRepo,
		customers:  deps.CustomerRepo,
		orders:     deps.OrderRepo,
		dispatcher: deps.Dispatcher,
	}
}

// CreateSession opens a new active session for an order+customer pair.
// Creation fails with Conflict when an active session already exists, so
// callers can distinguish "fetch the existing one" from "created new".
func (s *ChatService) CreateSession(ctx context.Context, input SessionCreateInput) (*domain.ChatSession, error) {
	if strings.TrimSpace(input.OrderID) == "" || strings.TrimSpace(input.CustomerID) == "" {
		return nil, apperrors.NewValidationError("orderId and customerId required", nil)
	}

	session := &domain.ChatSession{
		OrderID:    strings.TrimSpace(input.OrderID),
		CustomerID: strings.TrimSpace(input.CustomerID),
		Category:   strings.TrimSpace(input.Category),
		Issue:      strings.TrimSpace(input.Issue),
		Status:     domain.SessionStatusActive,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveSession) {
			return nil, apperrors.NewConflict("an active session already exists for this order", map[string]any{
				"orderId":    session.OrderID,
				"customerId": session.CustomerID,
			})
		}
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:      events.EventChatStarted,
		SessionID: session.ID,
		Actor:     events.CustomerActor(session.CustomerID),
		Payload:   events.ChatStartedPayload{Session: *session},
	})
	return session, nil
}

// GetSession returns a session with its full message sequence.
func (s *ChatService) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, []domain.ChatMessage, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("session", map[string]any{"id": sessionID})
		}
		return nil, nil, err
	}
	msgs, err := s.messages.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, msgs, nil
}

// ListSessions returns sessions newest-first by last message, each enriched
// with customer and order summaries. Missing references degrade to
// placeholders; enrichment never fails the listing.
func (s *ChatService) ListSessions(ctx context.Context, filter SessionListFilter) ([]EnrichedSession, error) {
	sessions, err := s.sessions.List(ctx, repository.SessionFilter{
		CustomerID: filter.CustomerID,
		OrderID:    filter.OrderID,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, err
	}

	result := make([]EnrichedSession, 0, len(sessions))
	for _, session := range sessions {
		enriched := EnrichedSession{
			Session:  session,
			Customer: domain.PlaceholderCustomer(),
			Order:    domain.PlaceholderOrder(session.OrderID),
		}
		if customer, err := s.customers.GetByID(ctx, session.CustomerID); err == nil {
			enriched.Customer = customer.Details()
		}
		if order, err := s.orders.GetByID(ctx, session.OrderID); err == nil {
			enriched.Order = order.Details()
		}
		result = append(result, enriched)
	}
	return result, nil
}

// AppendMessage persists a message against an active session and emits the
// canonical record on the change feed.
func (s *ChatService) AppendMessage(ctx context.Context, input MessageInput) (*domain.ChatMessage, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	if len(content) > domain.MaxMessageLength {
		return nil, apperrors.NewValidationError("content too long", map[string]any{"max": domain.MaxMessageLength})
	}
	if !domain.ValidSender(input.Sender) {
		return nil, apperrors.NewValidationError("sender must be customer or staff", nil)
	}
	if strings.TrimSpace(input.SenderID) == "" {
		return nil, apperrors.NewValidationError("senderId required", nil)
	}

	msg := &domain.ChatMessage{
		SessionID: input.SessionID,
		Sender:    input.Sender,
		SenderID:  input.SenderID,
		Content:   content,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("session", map[string]any{"id": input.SessionID})
		}
		if errors.Is(err, repository.ErrSessionNotActive) {
			return nil, apperrors.NewInvalidState("session no longer accepts messages", map[string]any{"id": input.SessionID})
		}
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:      events.EventChatMessageAdded,
		SessionID: msg.SessionID,
		Actor:     actorFor(input.Sender, input.SenderID),
		Payload:   events.ChatMessageAddedPayload{Message: *msg},
	})
	return msg, nil
}

// SetStatus applies a lifecycle transition. Resolving stamps resolvedAt and
// resolvedBy; reopening clears them. Setting the current status is a no-op.
func (s *ChatService) SetStatus(ctx context.Context, sessionID string, status domain.SessionStatus, actor domain.SubjectType, actorID string) (*domain.ChatSession, error) {
	if !domain.ValidStatus(status) {
		return nil, apperrors.NewValidationError("status must be active, resolved or closed", nil)
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("session", map[string]any{"id": sessionID})
		}
		return nil, err
	}
	if session.Status == status {
		return session, nil
	}
	if !domain.ValidTransition(session.Status, status) {
		return nil, apperrors.NewInvalidState("status transition not allowed", map[string]any{
			"from": session.Status,
			"to":   status,
		})
	}

	oldStatus := session.Status
	session.Status = status
	switch status {
	case domain.SessionStatusResolved:
		now := time.Now()
		session.ResolvedAt = &now
		resolvedBy := actorID
		session.ResolvedBy = &resolvedBy
	case domain.SessionStatusActive:
		session.ResolvedAt = nil
		session.ResolvedBy = nil
	}

	if err := s.sessions.UpdateStatus(ctx, session); err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:      events.EventChatUpdated,
		SessionID: session.ID,
		Actor:     actorFor(domain.SenderType(actor), actorID),
		Payload:   events.ChatUpdatedPayload{Session: *session, OldStatus: oldStatus},
	})
	return session, nil
}

// MarkRead flips read on every message in the session that the reader did
// not author. Idempotent: a second call updates nothing and still succeeds.
func (s *ChatService) MarkRead(ctx context.Context, sessionID, readerID string) (int64, error) {
	if strings.TrimSpace(readerID) == "" {
		return 0, apperrors.NewValidationError("userId required", nil)
	}
	updated, err := s.messages.MarkRead(ctx, sessionID, readerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NewNotFound("session", map[string]any{"id": sessionID})
		}
		return 0, err
	}
	if updated > 0 {
		s.publish(ctx, events.Event{
			Type:      events.EventChatRead,
			SessionID: sessionID,
			Payload:   events.ChatReadPayload{ReaderID: readerID, Updated: updated},
		})
	}
	return updated, nil
}

// AuthorizeParticipant checks whether a subject may act on a session.
// Staff can reach any session; customers only their own.
func AuthorizeParticipant(session *domain.ChatSession, subject domain.SubjectType, subjectID string) error {
	if subject == domain.SubjectTypeStaff {
		return nil
	}
	if subject == domain.SubjectTypeCustomer && session.CustomerID == subjectID {
		return nil
	}
	return apperrors.NewForbidden("not a participant of this session")
}

func (s *ChatService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actorFor(sender domain.SenderType, id string) events.Actor {
	if sender == domain.SenderStaff {
		return events.StaffActor(id)
	}
	return events.CustomerActor(id)
}
