package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/channel"
	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/repository"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// DeliveryService records outbound send attempts per channel with retry,
// backoff, and terminal failure accounting. A failed delivery never rolls
// back the conversation or ticket: the interaction already happened, only
// the reply did not arrive.
type DeliveryService struct {
	deliveries repository.DeliveryRepository
	messages   repository.MessageRepository
	senders    *channel.SenderRegistry
	dispatcher events.Dispatcher
	cfg        config.DeliveryConfig
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

// NewDeliveryService constructs the service.
func NewDeliveryService(deliveries repository.DeliveryRepository, messages repository.MessageRepository, senders *channel.SenderRegistry, dispatcher events.Dispatcher, cfg config.DeliveryConfig, logger *zap.Logger) *DeliveryService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryService{
		deliveries: deliveries,
		messages:   messages,
		senders:    senders,
		dispatcher: dispatcher,
		cfg:        cfg,
		sleep:      sleepWithContext,
		logger:     logger,
	}
}

// Send delivers the outbound message via its channel's sender. Transient
// failures retry with exponential backoff up to the attempt cap; every try is
// recorded. The terminal outcome is returned with a nil error: delivery
// failure is recovered within this step, not propagated to the event.
func (s *DeliveryService) Send(ctx context.Context, message *domain.Message, destination channel.Destination) (*domain.DeliveryOutcome, error) {
	sender, err := s.senders.For(message.Channel)
	if err != nil {
		return nil, err
	}

	outcome := &domain.DeliveryOutcome{
		MessageID: message.ID,
		Channel:   message.Channel,
	}

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		outcome.Attempts = attempt
		result, sendErr := s.trySend(ctx, sender, destination, message.Body)

		record := &domain.DeliveryAttempt{
			MessageID:     message.ID,
			AttemptNumber: attempt,
			AttemptedAt:   time.Now(),
		}

		if sendErr == nil {
			record.Status = domain.AttemptStatusDelivered
			if err := s.deliveries.CreateAttempt(ctx, record); err != nil {
				return nil, err
			}
			outcome.Status = domain.DeliveryStatusDelivered
			outcome.ExternalID = result.ExternalID
			return outcome, s.finish(ctx, message, outcome, attempt, "")
		}

		record.Status = domain.AttemptStatusFailed
		record.Error = sendErr.Error()
		if err := s.deliveries.CreateAttempt(ctx, record); err != nil {
			return nil, err
		}
		outcome.LastError = sendErr.Error()

		if apperrors.HasCode(sendErr, apperrors.CodeDeliveryPermanent) {
			s.logger.Warn("delivery rejected permanently",
				zap.String("message_id", message.ID),
				zap.Error(sendErr))
			outcome.Status = domain.DeliveryStatusFailed
			return outcome, s.finish(ctx, message, outcome, attempt, record.Error)
		}

		if attempt < s.cfg.MaxAttempts {
			if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
				outcome.Status = domain.DeliveryStatusFailed
				return outcome, s.finish(ctx, message, outcome, attempt, record.Error)
			}
		}
	}

	s.logger.Warn("delivery retries exhausted",
		zap.String("message_id", message.ID),
		zap.Int("attempts", s.cfg.MaxAttempts))
	outcome.Status = domain.DeliveryStatusFailed
	return outcome, s.finish(ctx, message, outcome, s.cfg.MaxAttempts, outcome.LastError)
}

func (s *DeliveryService) trySend(ctx context.Context, sender channel.Sender, destination channel.Destination, body string) (channel.SendResult, error) {
	sendCtx := ctx
	if s.cfg.SendTimeoutSec > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.SendTimeoutSec)*time.Second)
		defer cancel()
	}
	return sender.Send(sendCtx, destination, body)
}

func (s *DeliveryService) finish(ctx context.Context, message *domain.Message, outcome *domain.DeliveryOutcome, attempt int, lastError string) error {
	if err := s.messages.UpdateDeliveryStatus(ctx, message.ID, outcome.Status); err != nil {
		return err
	}
	message.DeliveryStatus = outcome.Status

	publishEvent(ctx, s.dispatcher, events.Event{
		Type: events.EventDeliveryOutcome,
		Payload: events.DeliveryOutcomePayload{
			MessageID:     message.ID,
			Channel:       message.Channel,
			Status:        outcome.Status,
			AttemptNumber: attempt,
			Error:         lastError,
		},
	})
	return nil
}

func (s *DeliveryService) backoff(attempt int) time.Duration {
	base := s.cfg.BackoffBase()
	if base <= 0 {
		return 0
	}
	return base << (attempt - 1)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
