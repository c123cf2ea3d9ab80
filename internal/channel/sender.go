package channel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/domain"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// Destination addresses the recipient on one channel.
type Destination struct {
	Email     string
	Phone     string
	AnonToken string
}

// SendResult is the external sender's acknowledgement.
type SendResult struct {
	ExternalID string
	Status     string
}

// Sender performs the physical send for one channel. Implementations
// classify failures through the delivery error constructors so the tracker
// can decide between retry and terminal failure.
type Sender interface {
	Send(ctx context.Context, destination Destination, body string) (SendResult, error)
}

// SenderRegistry maps each channel to its sender. The channel set is closed,
// so lookup failure means a wiring bug, not user input.
type SenderRegistry struct {
	senders map[domain.Channel]Sender
}

// NewSenderRegistry builds a registry from explicit per-channel senders.
func NewSenderRegistry(email, chat, webForm Sender) *SenderRegistry {
	return &SenderRegistry{senders: map[domain.Channel]Sender{
		domain.ChannelEmail:   email,
		domain.ChannelChat:    chat,
		domain.ChannelWebForm: webForm,
	}}
}

// For returns the sender for a channel.
func (r *SenderRegistry) For(kind domain.Channel) (Sender, error) {
	sender, ok := r.senders[kind]
	if !ok || sender == nil {
		return nil, fmt.Errorf("no sender registered for channel %q", kind)
	}
	return sender, nil
}

// LogSender is a stand-in sender that logs instead of delivering. Production
// deployments replace it with real adapter implementations per channel.
type LogSender struct {
	channel domain.Channel
	logger  *zap.Logger
}

// NewLogSender constructs a logging sender for the channel.
func NewLogSender(kind domain.Channel, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{channel: kind, logger: logger}
}

// Send logs the outbound message and reports success.
func (s *LogSender) Send(ctx context.Context, destination Destination, body string) (SendResult, error) {
	address := destination.Email
	if address == "" {
		address = destination.Phone
	}
	if address == "" {
		address = destination.AnonToken
	}
	if address == "" {
		return SendResult{}, apperrors.NewDeliveryPermanent(fmt.Errorf("no destination address for channel %s", s.channel))
	}
	s.logger.Info("outbound send",
		zap.String("channel", string(s.channel)),
		zap.String("destination", address),
		zap.Int("body_len", len(body)))
	return SendResult{ExternalID: "", Status: "accepted"}, nil
}
