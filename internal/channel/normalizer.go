package channel

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spec-kit/support-engine/internal/domain"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// inboundEnvelope is the wire shape channel adapters publish onto the bus.
// Everything beyond the common fields rides in the opaque metadata bag.
type inboundEnvelope struct {
	Channel          string         `json:"channel"`
	ChannelMessageID string         `json:"channel_message_id"`
	Contact          contactFields  `json:"contact"`
	Subject          string         `json:"subject,omitempty"`
	Body             string         `json:"body"`
	ReceivedAt       time.Time      `json:"received_at"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type contactFields struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AnonToken string `json:"anon_token,omitempty"`
}

// Normalizer converts channel-specific inbound payloads into the canonical
// representation. It has no side effects; a payload missing its mandatory
// fields (body text, usable contact evidence for its channel) fails with a
// non-retryable normalization error that the dispatcher dead-letters.
type Normalizer struct{}

// NewNormalizer constructs a normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// PeekChannel extracts just the channel tag so the dispatcher can route the
// payload before full normalization.
func PeekChannel(raw []byte) (domain.Channel, error) {
	var head struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", apperrors.NewNormalizationError("malformed inbound payload", map[string]any{"error": err.Error()})
	}
	kind, err := domain.ParseChannel(head.Channel)
	if err != nil {
		return "", apperrors.NewNormalizationError("unknown channel", map[string]any{"channel": head.Channel})
	}
	return kind, nil
}

// Normalize maps a raw channel payload onto the canonical inbound message.
// Each channel admits different contact evidence: email events must carry a
// sender address, chat events a phone-style address, web form submissions an
// email or an anonymous session token.
func (n *Normalizer) Normalize(raw []byte, kind domain.Channel) (*domain.InboundMessage, error) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperrors.NewNormalizationError("malformed inbound payload", map[string]any{"error": err.Error()})
	}

	msg := &domain.InboundMessage{
		Channel:          kind,
		ChannelMessageID: strings.TrimSpace(envelope.ChannelMessageID),
		Subject:          strings.TrimSpace(envelope.Subject),
		Body:             strings.TrimSpace(envelope.Body),
		ReceivedAt:       envelope.ReceivedAt,
		Metadata:         envelope.Metadata,
	}

	email := strings.ToLower(strings.TrimSpace(envelope.Contact.Email))
	phone := strings.TrimSpace(envelope.Contact.Phone)
	anonToken := strings.TrimSpace(envelope.Contact.AnonToken)

	switch kind {
	case domain.ChannelEmail:
		msg.Contact = domain.ContactEvidence{Email: email}
	case domain.ChannelChat:
		msg.Contact = domain.ContactEvidence{Phone: phone}
	case domain.ChannelWebForm:
		msg.Contact = domain.ContactEvidence{Email: email, AnonToken: anonToken}
	default:
		return nil, apperrors.NewNormalizationError("unknown channel", map[string]any{"channel": string(kind)})
	}

	if msg.Body == "" {
		return nil, apperrors.NewNormalizationError("body text required", map[string]any{"channel": string(kind)})
	}
	if msg.Contact.Empty() {
		return nil, apperrors.NewNormalizationError("contact evidence required", map[string]any{"channel": string(kind)})
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	return msg, nil
}
