package domain

import "time"

// MessageDirection distinguishes inbound from outbound utterances.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "INBOUND"
	DirectionOutbound MessageDirection = "OUTBOUND"
)

// MessageRole indicates who authored a message.
type MessageRole string

const (
	RoleCustomer MessageRole = "CUSTOMER"
	RoleAgent    MessageRole = "AGENT"
	RoleSystem   MessageRole = "SYSTEM"
)

// DeliveryStatus tracks outbound delivery progress for a message.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusSent      DeliveryStatus = "SENT"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
)

// Message is one inbound or outbound utterance within a conversation.
// Ordering within a conversation is by CreatedAt with ties broken by Seq.
// ChannelMessageID, when present, is unique per channel.
type Message struct {
	ID               string
	Seq              int64
	ConversationID   string
	Channel          Channel
	Direction        MessageDirection
	Role             MessageRole
	Body             string
	ChannelMessageID string
	DeliveryStatus   DeliveryStatus
	CreatedAt        time.Time
}

// InboundMessage is the canonical, channel-agnostic representation of an
// inbound communication produced by the normalizer.
type InboundMessage struct {
	Channel          Channel
	ChannelMessageID string
	Contact          ContactEvidence
	Subject          string
	Body             string
	ReceivedAt       time.Time
	Metadata         map[string]any
}
