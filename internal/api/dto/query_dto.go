package dto

import (
	"time"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/repository"
)

// CustomerResponse is the operator view of one customer identity.
type CustomerResponse struct {
	ID          string               `json:"id"`
	DisplayName string               `json:"display_name,omitempty"`
	Email       *string              `json:"email,omitempty"`
	Phone       *string              `json:"phone,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Identifiers []IdentifierResponse `json:"identifiers"`
}

// IdentifierResponse is one channel address bound to a customer.
type IdentifierResponse struct {
	Type     domain.IdentifierType `json:"type"`
	Value    string                `json:"value"`
	Verified bool                  `json:"verified"`
}

// ConversationResponse is the operator view of one conversation.
type ConversationResponse struct {
	ID                string                 `json:"id"`
	CustomerID        string                 `json:"customer_id"`
	InitiatingChannel domain.Channel         `json:"initiating_channel"`
	Status            domain.ConversationStatus `json:"status"`
	StartedAt         time.Time              `json:"started_at"`
	EndedAt           *time.Time             `json:"ended_at,omitempty"`
	SentimentScore    *float64               `json:"sentiment_score,omitempty"`
	ResolutionType    *domain.ResolutionType `json:"resolution_type,omitempty"`
}

// MessageResponse is one history entry.
type MessageResponse struct {
	ID             string                 `json:"id"`
	Seq            int64                  `json:"seq"`
	Channel        domain.Channel         `json:"channel"`
	Direction      domain.MessageDirection `json:"direction"`
	Role           domain.MessageRole     `json:"role"`
	Body           string                 `json:"body"`
	DeliveryStatus domain.DeliveryStatus  `json:"delivery_status,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// MessagePageResponse is one cursor page of conversation history.
type MessagePageResponse struct {
	Messages   []MessageResponse `json:"messages"`
	HasMore    bool              `json:"has_more"`
	NextCursor int64             `json:"next_cursor,omitempty"`
}

// TicketResponse is the operator view of one ticket.
type TicketResponse struct {
	ID               string                `json:"id"`
	ConversationID   string                `json:"conversation_id"`
	CustomerID       string                `json:"customer_id"`
	SourceChannel    domain.Channel        `json:"source_channel"`
	Category         string                `json:"category"`
	Priority         domain.TicketPriority `json:"priority"`
	Status           domain.TicketStatus   `json:"status"`
	EscalationReason *string               `json:"escalation_reason,omitempty"`
	ResolutionNotes  *string               `json:"resolution_notes,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// DeadLetterResponse is one undeliverable event kept for inspection.
type DeadLetterResponse struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	EventID   string    `json:"event_id"`
	Channel   string    `json:"channel,omitempty"`
	Reason    string    `json:"reason"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// FromCustomer maps a customer and its identifiers.
func FromCustomer(customer *domain.Customer, identifiers []domain.Identifier) CustomerResponse {
	resp := CustomerResponse{
		ID:          customer.ID,
		DisplayName: customer.DisplayName,
		Email:       customer.Email,
		Phone:       customer.Phone,
		CreatedAt:   customer.CreatedAt,
		Identifiers: make([]IdentifierResponse, 0, len(identifiers)),
	}
	for _, identifier := range identifiers {
		resp.Identifiers = append(resp.Identifiers, IdentifierResponse{
			Type:     identifier.Type,
			Value:    identifier.Value,
			Verified: identifier.Verified,
		})
	}
	return resp
}

// FromConversation maps a conversation.
func FromConversation(conversation domain.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                conversation.ID,
		CustomerID:        conversation.CustomerID,
		InitiatingChannel: conversation.InitiatingChannel,
		Status:            conversation.Status,
		StartedAt:         conversation.StartedAt,
		EndedAt:           conversation.EndedAt,
		SentimentScore:    conversation.SentimentScore,
		ResolutionType:    conversation.ResolutionType,
	}
}

// FromMessagePage maps one history page.
func FromMessagePage(page *repository.MessagePage) MessagePageResponse {
	resp := MessagePageResponse{
		Messages:   make([]MessageResponse, 0, len(page.Messages)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
	for _, message := range page.Messages {
		resp.Messages = append(resp.Messages, MessageResponse{
			ID:             message.ID,
			Seq:            message.Seq,
			Channel:        message.Channel,
			Direction:      message.Direction,
			Role:           message.Role,
			Body:           message.Body,
			DeliveryStatus: message.DeliveryStatus,
			CreatedAt:      message.CreatedAt,
		})
	}
	return resp
}

// FromTicket maps a ticket.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:               ticket.ID,
		ConversationID:   ticket.ConversationID,
		CustomerID:       ticket.CustomerID,
		SourceChannel:    ticket.SourceChannel,
		Category:         ticket.Category,
		Priority:         ticket.Priority,
		Status:           ticket.Status,
		EscalationReason: ticket.EscalationReason,
		ResolutionNotes:  ticket.ResolutionNotes,
		CreatedAt:        ticket.CreatedAt,
		UpdatedAt:        ticket.UpdatedAt,
	}
}

// FromDeadLetter maps a dead letter.
func FromDeadLetter(letter domain.DeadLetter) DeadLetterResponse {
	return DeadLetterResponse{
		ID:        letter.ID,
		Topic:     letter.Topic,
		EventID:   letter.EventID,
		Channel:   letter.Channel,
		Reason:    letter.Reason,
		Payload:   string(letter.Payload),
		CreatedAt: letter.CreatedAt,
	}
}
