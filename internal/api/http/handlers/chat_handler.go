package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
	"github.com/spec-kit/support-chat-service/internal/auth"
	"github.com/spec-kit/support-chat-service/internal/domain"
	"github.com/spec-kit/support-chat-service/internal/limiter"
	"github.com/spec-kit/support-chat-service/internal/service"
	apperrors "github.com/spec-kit/support-chat-service/pkg/util"
)

// ChatHandler serves the REST fallback path: hydration on mount, the admin
// surface, and all mutations when the push channel is unavailable.
type ChatHandler struct {
	chat     *service.ChatService
	limiter  *limiter.Limiter
	validate *validator.Validate
}

// NewChatHandler constructs handler.
func NewChatHandler(chat *service.ChatService, rateLimiter *limiter.Limiter) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		limiter:  rateLimiter,
		validate: validator.New(),
	}
}

// ListSessions GET /support-chat.
// ?role=admin lists everything; ?customerId= scopes to one customer.
func (h *ChatHandler) ListSessions(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := service.SessionListFilter{}
	switch {
	case c.Query("role") == "admin":
		if principal.SubjectType != domain.SubjectTypeStaff {
			return apperrors.NewForbidden("admin listing requires staff")
		}
	case c.Query("customerId") != "":
		customerID := c.Query("customerId")
		if principal.SubjectType == domain.SubjectTypeCustomer && principal.SubjectID() != customerID {
			return apperrors.NewForbidden("cannot list another customer's sessions")
		}
		filter.CustomerID = &customerID
	default:
		if principal.SubjectType != domain.SubjectTypeStaff {
			customerID := principal.SubjectID()
			filter.CustomerID = &customerID
		}
	}
	if orderID := c.Query("orderId"); orderID != "" {
		filter.OrderID = &orderID
	}

	sessions, err := h.chat.ListSessions(c.Context(), filter)
	if err != nil {
		return err
	}

	items := make([]dto.EnrichedSessionResponse, 0, len(sessions))
	for i := range sessions {
		items = append(items, enrichedResponse(&sessions[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateSession POST /support-chat.
func (h *ChatHandler) CreateSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	customerID := req.CustomerID
	if principal.SubjectType == domain.SubjectTypeCustomer {
		// customers always create for themselves
		customerID = principal.SubjectID()
	}

	session, err := h.chat.CreateSession(c.Context(), service.SessionCreateInput{
		OrderID:    req.OrderID,
		CustomerID: customerID,
		Issue:      req.Issue,
		Category:   req.Category,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewSessionResponse(session, nil)})
}

// GetSession GET /support-chat/:id.
func (h *ChatHandler) GetSession(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	session, msgs, err := h.chat.GetSession(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := service.AuthorizeParticipant(session, principal.SubjectType, principal.SubjectID()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSessionResponse(session, msgs)})
}

// UpdateStatus PUT /support-chat/:id.
func (h *ChatHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.SubjectType != domain.SubjectTypeStaff {
		return apperrors.NewForbidden("status changes require staff")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	session, err := h.chat.SetStatus(c.Context(), c.Params("id"),
		domain.SessionStatus(req.Status), principal.SubjectType, principal.SubjectID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSessionResponse(session, nil)})
}

// AppendMessage POST /support-chat/message.
func (h *ChatHandler) AppendMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AppendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	allowed, err := h.limiter.Allow(c.Context(), principal.SubjectID())
	if err == nil && !allowed {
		return apperrors.NewDomainError("RATE_LIMITED", "too many messages, slow down",
			http.StatusTooManyRequests, nil)
	}

	session, _, err := h.chat.GetSession(c.Context(), req.ChatID)
	if err != nil {
		return err
	}
	if err := service.AuthorizeParticipant(session, principal.SubjectType, principal.SubjectID()); err != nil {
		return err
	}

	sender := domain.SenderCustomer
	if principal.SubjectType == domain.SubjectTypeStaff {
		sender = domain.SenderStaff
	}
	msg, err := h.chat.AppendMessage(c.Context(), service.MessageInput{
		SessionID: req.ChatID,
		Sender:    sender,
		SenderID:  principal.SubjectID(),
		Content:   req.Content,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// MarkRead POST /support-chat/read-messages.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.MarkReadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	session, _, err := h.chat.GetSession(c.Context(), req.ChatID)
	if err != nil {
		return err
	}
	if err := service.AuthorizeParticipant(session, principal.SubjectType, principal.SubjectID()); err != nil {
		return err
	}

	updated, err := h.chat.MarkRead(c.Context(), req.ChatID, principal.SubjectID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkReadResponse{Updated: updated > 0, Count: updated}})
}

func enrichedResponse(enriched *service.EnrichedSession) dto.EnrichedSessionResponse {
	return dto.EnrichedSessionResponse{
		SessionResponse: dto.NewSessionResponse(&enriched.Session, nil),
		CustomerDetails: dto.NewCustomerDetails(enriched.Customer),
		OrderDetails:    dto.NewOrderDetails(enriched.Order),
	}
}
