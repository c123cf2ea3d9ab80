package domain

import "time"

// DeliveryAttemptStatus enumerates the outcome of one send try.
type DeliveryAttemptStatus string

const (
	AttemptStatusPending   DeliveryAttemptStatus = "PENDING"
	AttemptStatusSent      DeliveryAttemptStatus = "SENT"
	AttemptStatusDelivered DeliveryAttemptStatus = "DELIVERED"
	AttemptStatusFailed    DeliveryAttemptStatus = "FAILED"
)

// DeliveryAttempt records one try at sending an outbound message.
// AttemptNumber is strictly increasing per message; rows are immutable once
// written.
type DeliveryAttempt struct {
	ID            string
	MessageID     string
	AttemptNumber int
	Status        DeliveryAttemptStatus
	Error         string
	AttemptedAt   time.Time
}

// DeliveryOutcome summarizes the terminal result of delivering a message.
type DeliveryOutcome struct {
	MessageID  string
	Channel    Channel
	Status     DeliveryStatus
	Attempts   int
	ExternalID string
	LastError  string
}

// DeadLetter holds an event that could not be processed, kept for manual
// inspection.
type DeadLetter struct {
	ID        string
	Topic     string
	EventID   string
	Channel   string
	Reason    string
	Payload   []byte
	CreatedAt time.Time
}
