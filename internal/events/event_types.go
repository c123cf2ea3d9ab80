package events

import (
	"time"

	"github.com/spec-kit/support-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventConversationStarted       EventType = "conversation_started"
	EventConversationInconsistency EventType = "conversation_inconsistency"
	EventTicketEscalated           EventType = "ticket_escalated"
	EventDeliveryOutcome           EventType = "delivery_outcome"
	EventMetricsRecorded           EventType = "metrics_recorded"
	EventDeadLettered              EventType = "event_dead_lettered"
)

// Event represents a derived event emitted by the pipeline.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// ConversationStartedPayload payload.
type ConversationStartedPayload struct {
	ConversationID string         `json:"conversation_id"`
	CustomerID     string         `json:"customer_id"`
	Channel        domain.Channel `json:"channel"`
}

// ConversationInconsistencyPayload flags multiple simultaneously active
// conversations for one customer.
type ConversationInconsistencyPayload struct {
	CustomerID      string   `json:"customer_id"`
	ActiveCount     int      `json:"active_count"`
	ConversationIDs []string `json:"conversation_ids"`
	ChosenID        string   `json:"chosen_id"`
}

// TicketEscalatedPayload payload. Snapshot carries the recent conversation
// history handed to the human-handoff collaborator.
type TicketEscalatedPayload struct {
	TicketID       string                `json:"ticket_id"`
	ConversationID string                `json:"conversation_id"`
	Reason         string                `json:"reason"`
	Urgency        domain.TicketPriority `json:"urgency"`
	Snapshot       []domain.Message      `json:"conversation_snapshot"`
}

// DeliveryOutcomePayload payload.
type DeliveryOutcomePayload struct {
	MessageID     string                `json:"message_id"`
	Channel       domain.Channel        `json:"channel"`
	Status        domain.DeliveryStatus `json:"status"`
	AttemptNumber int                   `json:"attempt_number"`
	Error         string                `json:"error,omitempty"`
}

// MetricsRecordedPayload payload.
type MetricsRecordedPayload struct {
	Channel        domain.Channel `json:"channel"`
	LatencyMS      int64          `json:"latency_ms"`
	Escalated      bool           `json:"escalated"`
	ToolCallsCount int            `json:"tool_calls_count"`
}

// DeadLetteredPayload payload.
type DeadLetteredPayload struct {
	Topic   string `json:"topic"`
	EventID string `json:"event_id"`
	Channel string `json:"channel"`
	Reason  string `json:"reason"`
}
