package domain

import "time"

// ConversationStatus enumerates conversation lifecycle states.
type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "ACTIVE"
	ConversationStatusClosed ConversationStatus = "CLOSED"
)

// ResolutionType records how a conversation ended.
type ResolutionType string

const (
	ResolutionResolved  ResolutionType = "RESOLVED"
	ResolutionEscalated ResolutionType = "ESCALATED"
	ResolutionIdle      ResolutionType = "IDLE_TIMEOUT"
)

// Conversation is a bounded period of interaction with one customer.
// At most one active conversation per customer accepts new inbound messages
// at any instant; once closed it is immutable except for reporting fields.
type Conversation struct {
	ID                string
	CustomerID        string
	InitiatingChannel Channel
	Status            ConversationStatus
	StartedAt         time.Time
	EndedAt           *time.Time
	SentimentScore    *float64
	ResolutionType    *ResolutionType
}
