package dto

import (
	"time"

	"github.com/spec-kit/support-chat-service/internal/domain"
)

// CreateSessionRequest payload for POST /support-chat and chat:start.
type CreateSessionRequest struct {
	OrderID    string `json:"orderId" validate:"required"`
	CustomerID string `json:"customerId"`
	Issue      string `json:"issue" validate:"required"`
	Category   string `json:"category" validate:"required"`
}

// AppendMessageRequest payload for POST /support-chat/message and chat:send.
type AppendMessageRequest struct {
	ChatID   string `json:"chatId" validate:"required"`
	Content  string `json:"content" validate:"required,max=2000"`
	Sender   string `json:"sender" validate:"omitempty,oneof=customer staff"`
	SenderID string `json:"senderId"`
}

// MarkReadRequest payload for POST /support-chat/read-messages and chat:markRead.
type MarkReadRequest struct {
	ChatID string `json:"chatId" validate:"required"`
	UserID string `json:"userId"`
}

// UpdateStatusRequest payload for PUT /support-chat/:id.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active resolved closed"`
}

// MessageResponse is the canonical wire shape of a message on both
// transports.
type MessageResponse struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// SessionResponse is the canonical wire shape of a session.
type SessionResponse struct {
	ID            string            `json:"id"`
	OrderID       string            `json:"orderId"`
	OrderNumber   string            `json:"orderNumber"`
	CustomerID    string            `json:"customerId"`
	Category      string            `json:"category"`
	Issue         string            `json:"issue"`
	Status        string            `json:"status"`
	LastMessageAt time.Time         `json:"lastMessageAt"`
	CreatedAt     time.Time         `json:"createdAt"`
	ResolvedAt    *time.Time        `json:"resolvedAt,omitempty"`
	ResolvedBy    *string           `json:"resolvedBy,omitempty"`
	Messages      []MessageResponse `json:"messages,omitempty"`
}

// CustomerDetails is the denormalized customer summary on listings.
type CustomerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// OrderDetails is the denormalized order summary on listings.
type OrderDetails struct {
	OrderNumber string `json:"orderNumber"`
	TotalAmount int64  `json:"totalAmount"`
	Status      string `json:"status"`
}

// EnrichedSessionResponse is a session plus its reference summaries, used by
// the admin listing.
type EnrichedSessionResponse struct {
	SessionResponse
	CustomerDetails CustomerDetails `json:"customerDetails"`
	OrderDetails    OrderDetails    `json:"orderDetails"`
}

// MarkReadResponse reports whether anything changed.
type MarkReadResponse struct {
	Updated bool  `json:"updated"`
	Count   int64 `json:"count"`
}

// NewMessageResponse maps a domain message to its wire shape.
func NewMessageResponse(msg *domain.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		ChatID:    msg.SessionID,
		Sender:    string(msg.Sender),
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		Read:      msg.Read,
	}
}

// NewSessionResponse maps a domain session, optionally with its messages.
func NewSessionResponse(session *domain.ChatSession, messages []domain.ChatMessage) SessionResponse {
	resp := SessionResponse{
		ID:            session.ID,
		OrderID:       session.OrderID,
		OrderNumber:   domain.OrderNumber(session.OrderID),
		CustomerID:    session.CustomerID,
		Category:      session.Category,
		Issue:         session.Issue,
		Status:        string(session.Status),
		LastMessageAt: session.LastMessageAt,
		CreatedAt:     session.CreatedAt,
		ResolvedAt:    session.ResolvedAt,
		ResolvedBy:    session.ResolvedBy,
	}
	for i := range messages {
		resp.Messages = append(resp.Messages, NewMessageResponse(&messages[i]))
	}
	return resp
}

// NewCustomerDetails maps the domain enrichment summary.
func NewCustomerDetails(details domain.CustomerDetails) CustomerDetails {
	return CustomerDetails{Name: details.Name, Email: details.Email, Phone: details.Phone}
}

// NewOrderDetails maps the domain enrichment summary.
func NewOrderDetails(details domain.OrderDetails) OrderDetails {
	return OrderDetails{
		OrderNumber: details.OrderNumber,
		TotalAmount: details.TotalAmount,
		Status:      details.Status,
	}
}
