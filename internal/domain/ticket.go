package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. Transitions are
// monotonic; ESCALATED is terminal for automated handling.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusEscalated  TicketStatus = "ESCALATED"
)

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// EscalationReason explains why a ticket left automated handling.
const (
	EscalationReasonResponder         = "responder_signal"
	EscalationReasonSentiment         = "sentiment_floor"
	EscalationReasonKeyword           = "keyword_trigger"
	EscalationReasonProcessingFailure = "processing_failure"
	EscalationReasonDeliveryFailure   = "delivery_failure"
)

// Ticket is the work-tracking record for a conversation. A ticket is created
// at most once per conversation.
type Ticket struct {
	ID               string
	ConversationID   string
	CustomerID       string
	SourceChannel    Channel
	Category         string
	Priority         TicketPriority
	Status           TicketStatus
	EscalationReason *string
	ResolutionNotes  *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
