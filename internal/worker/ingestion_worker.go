// Package worker hosts the ingestion dispatcher: the pool of bus consumers
// that drives each raw channel event through normalization, identity
// resolution, conversation attachment, the responder, ticket transitions,
// and outbound delivery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/bus"
	"github.com/spec-kit/support-engine/internal/channel"
	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/observability"
	"github.com/spec-kit/support-engine/internal/repository"
	"github.com/spec-kit/support-engine/internal/responder"
	"github.com/spec-kit/support-engine/internal/service"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

const (
	historyLimit      = 50
	idleSweepInterval = 5 * time.Minute
	apologyText       = "We're sorry — we couldn't process your request automatically. A member of our team will follow up with you shortly."
)

// Dependencies bundles collaborators for the ingestion worker.
type Dependencies struct {
	Bus         bus.Bus
	Normalizer  *channel.Normalizer
	Identity    *service.IdentityService
	Sessions    *service.SessionService
	Tickets     *service.TicketService
	Delivery    *service.DeliveryService
	Responder   responder.Responder
	Messages    repository.MessageRepository
	DeadLetters repository.DeadLetterRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
}

// IngestionWorker consumes inbound events and orchestrates the pipeline.
// Processing is idempotent with respect to the bus's at-least-once delivery:
// the (channel, channel_message_id) dedup check runs before any write.
type IngestionWorker struct {
	deps     Dependencies
	cfg      config.BusConfig
	pipeline config.PipelineConfig
	logger   *zap.Logger
}

// NewIngestionWorker constructs the worker.
func NewIngestionWorker(deps Dependencies, cfg config.BusConfig, pipeline config.PipelineConfig, logger *zap.Logger) *IngestionWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionWorker{deps: deps, cfg: cfg, pipeline: pipeline, logger: logger}
}

// Run starts the consumer pool and the idle-conversation sweeper, blocking
// until ctx is cancelled.
func (w *IngestionWorker) Run(ctx context.Context) error {
	workers := w.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		consumerName := fmt.Sprintf("%s-%d", w.cfg.ConsumerGroup, i)
		go func() {
			defer wg.Done()
			err := w.deps.Bus.Consume(ctx, w.cfg.InboundStream, w.cfg.ConsumerGroup, consumerName, w.Handle)
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("consumer stopped", zap.String("consumer", consumerName), zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.sweepIdle(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

// Handle processes one bus delivery. It always consumes the delivery:
// retryable failures are re-published with an incremented attempt counter
// until the retry limit, then handed to the failure path so no inquiry is
// silently dropped.
func (w *IngestionWorker) Handle(ctx context.Context, delivery bus.Delivery) error {
	err := w.process(ctx, delivery)
	if err == nil {
		return nil
	}

	if !apperrors.IsRetryable(err) {
		w.deadLetter(ctx, delivery, err)
		return nil
	}

	if delivery.Attempt+1 < w.retryLimit(err) {
		w.logger.Warn("event processing failed, retrying",
			zap.String("event_id", delivery.EventID),
			zap.Int("attempt", delivery.Attempt),
			zap.Error(err))
		if pubErr := w.deps.Bus.Publish(ctx, w.cfg.InboundStream, delivery.EventID, delivery.Attempt+1, delivery.Payload); pubErr != nil {
			w.logger.Error("failed to re-publish event", zap.String("event_id", delivery.EventID), zap.Error(pubErr))
			w.deadLetter(ctx, delivery, err)
		}
		return nil
	}

	w.handleExhausted(ctx, delivery, err)
	return nil
}

// retryLimit picks the attempt cap for a failed event. Responder faults have
// their own cap so a flapping responder gives up and escalates on the
// configured schedule rather than the generic bus one.
func (w *IngestionWorker) retryLimit(err error) int {
	if apperrors.HasCode(err, apperrors.CodeResponderTimeout) || apperrors.HasCode(err, apperrors.CodeResponderFailed) {
		if w.pipeline.ResponderMaxRetries > 0 {
			return w.pipeline.ResponderMaxRetries
		}
	}
	return w.cfg.MaxEventRetries
}

func (w *IngestionWorker) process(ctx context.Context, delivery bus.Delivery) error {
	started := time.Now()

	kind, err := channel.PeekChannel(delivery.Payload)
	if err != nil {
		return err
	}

	msg, err := w.deps.Normalizer.Normalize(delivery.Payload, kind)
	if err != nil {
		return err
	}

	var inbound *domain.Message
	if msg.ChannelMessageID != "" {
		existing, err := w.deps.Messages.GetByChannelMessageID(ctx, msg.Channel, msg.ChannelMessageID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if existing != nil {
			if delivery.Attempt == 0 {
				// Redelivered external event; processing already happened or
				// is in flight elsewhere.
				w.deps.Metrics.RecordDedup(string(msg.Channel))
				w.logger.Debug("duplicate inbound event skipped",
					zap.String("channel", string(msg.Channel)),
					zap.String("channel_message_id", msg.ChannelMessageID))
				return nil
			}
			// Our own retry: the inbound row survived the failed attempt, so
			// resume processing from it instead of writing a second row.
			inbound = existing
		}
	}

	customer, err := w.deps.Identity.Resolve(ctx, msg.Contact, displayNameFrom(msg))
	if err != nil {
		return err
	}

	conversation, _, err := w.deps.Sessions.Attach(ctx, customer.ID, msg.Channel, msg.ReceivedAt)
	if err != nil {
		return err
	}

	// The inbound row is committed before the responder runs: a responder
	// timeout can lose a reply, never a customer message.
	if inbound == nil {
		inbound = &domain.Message{
			ConversationID:   conversation.ID,
			Channel:          msg.Channel,
			Direction:        domain.DirectionInbound,
			Role:             domain.RoleCustomer,
			Body:             msg.Body,
			ChannelMessageID: msg.ChannelMessageID,
			CreatedAt:        msg.ReceivedAt,
		}
		if err := w.deps.Messages.Create(ctx, inbound); err != nil {
			return err
		}
	}

	ticket, err := w.deps.Tickets.EnsureOpen(ctx, conversation, msg.Channel)
	if err != nil {
		return err
	}
	if ticket.Status == domain.TicketStatusEscalated {
		// Automated handling already ended; the message is recorded for the
		// human handling the escalation.
		w.logger.Info("inbound message on escalated ticket recorded",
			zap.String("ticket_id", ticket.ID))
		return nil
	}

	page, err := w.deps.Messages.ListByConversation(ctx, conversation.ID, 0, historyLimit)
	if err != nil {
		return err
	}

	// Keyword policy is a hard trigger checked before the responder runs, so
	// its outcome cannot depend on responder availability or output. The
	// thread goes straight to a human; no automated reply is generated.
	if reason, ok := w.deps.Tickets.KeywordTrigger(msg.Body); ok {
		if err := w.deps.Tickets.Escalate(ctx, ticket, reason, page.Messages); err != nil {
			return err
		}
		if err := w.deps.Sessions.Close(ctx, conversation.ID, domain.ResolutionEscalated); err != nil {
			w.logger.Warn("failed to close escalated conversation", zap.Error(err))
		}
		latency := time.Since(started)
		w.deps.Metrics.RecordIngest(string(msg.Channel), latency, true)
		w.publishEvent(ctx, events.Event{
			Type: events.EventMetricsRecorded,
			Payload: events.MetricsRecordedPayload{
				Channel:   msg.Channel,
				LatencyMS: latency.Milliseconds(),
				Escalated: true,
			},
		})
		return nil
	}

	result, err := w.deps.Responder.Respond(ctx, responder.Request{
		ConversationID: conversation.ID,
		Customer:       *customer,
		History:        page.Messages,
		Subject:        msg.Subject,
		Body:           msg.Body,
		Metadata:       msg.Metadata,
	})
	if err != nil {
		return err
	}

	if result.Sentiment != nil {
		if err := w.deps.Sessions.RecordSentiment(ctx, conversation.ID, *result.Sentiment); err != nil {
			w.logger.Warn("failed to record sentiment", zap.Error(err))
		}
	}

	escalate, reason := w.deps.Tickets.EvaluateTriggers(msg.Body, result.Sentiment, result.Escalate, result.Reason)

	var outbound *domain.Message
	replyText := result.FullText()
	if replyText != "" {
		outbound = &domain.Message{
			ConversationID: conversation.ID,
			Channel:        msg.Channel,
			Direction:      domain.DirectionOutbound,
			Role:           domain.RoleAgent,
			Body:           replyText,
			DeliveryStatus: domain.DeliveryStatusPending,
			CreatedAt:      time.Now(),
		}
		if err := w.deps.Messages.Create(ctx, outbound); err != nil {
			return err
		}
		if err := w.deps.Tickets.MarkInProgress(ctx, ticket); err != nil {
			return err
		}
	}

	switch {
	case escalate:
		if err := w.deps.Tickets.Escalate(ctx, ticket, reason, page.Messages); err != nil {
			return err
		}
		if err := w.deps.Sessions.Close(ctx, conversation.ID, domain.ResolutionEscalated); err != nil {
			w.logger.Warn("failed to close escalated conversation", zap.Error(err))
		}
	case result.Resolved:
		if err := w.deps.Tickets.Resolve(ctx, ticket, result.Reason); err != nil {
			return err
		}
		if err := w.deps.Sessions.Close(ctx, conversation.ID, domain.ResolutionResolved); err != nil {
			w.logger.Warn("failed to close resolved conversation", zap.Error(err))
		}
	}

	if outbound != nil {
		outcome, err := w.deps.Delivery.Send(ctx, outbound, destinationFor(msg.Contact))
		if err != nil {
			return err
		}
		w.deps.Metrics.RecordDelivery(string(msg.Channel), outcome.Status == domain.DeliveryStatusDelivered)
		if outcome.Status == domain.DeliveryStatusFailed && !escalate {
			// The reply never reached the customer; hand the thread to a
			// human rather than leaving silence.
			if err := w.deps.Tickets.Escalate(ctx, ticket, domain.EscalationReasonDeliveryFailure, page.Messages); err != nil {
				w.logger.Warn("failed to escalate after delivery failure", zap.Error(err))
			}
		}
	}

	latency := time.Since(started)
	w.deps.Metrics.RecordIngest(string(msg.Channel), latency, escalate)
	w.publishEvent(ctx, events.Event{
		Type: events.EventMetricsRecorded,
		Payload: events.MetricsRecordedPayload{
			Channel:        msg.Channel,
			LatencyMS:      latency.Milliseconds(),
			Escalated:      escalate,
			ToolCallsCount: result.ToolCalls,
		},
	})
	return nil
}

// handleExhausted runs when event retries are spent. The identity and
// conversation steps are idempotent, so they are replayed to locate the
// ticket; it escalates with processing_failure and a best-effort apology is
// sent so the customer is not left with total silence.
func (w *IngestionWorker) handleExhausted(ctx context.Context, delivery bus.Delivery, procErr error) {
	w.logger.Error("event retries exhausted",
		zap.String("event_id", delivery.EventID),
		zap.Int("attempts", delivery.Attempt+1),
		zap.Error(procErr))

	kind, err := channel.PeekChannel(delivery.Payload)
	if err != nil {
		w.deadLetter(ctx, delivery, procErr)
		return
	}
	msg, err := w.deps.Normalizer.Normalize(delivery.Payload, kind)
	if err != nil {
		w.deadLetter(ctx, delivery, procErr)
		return
	}

	customer, err := w.deps.Identity.Resolve(ctx, msg.Contact, displayNameFrom(msg))
	if err != nil {
		w.deadLetter(ctx, delivery, procErr)
		return
	}
	conversation, _, err := w.deps.Sessions.Attach(ctx, customer.ID, msg.Channel, msg.ReceivedAt)
	if err != nil {
		w.deadLetter(ctx, delivery, procErr)
		return
	}
	ticket, err := w.deps.Tickets.EnsureOpen(ctx, conversation, msg.Channel)
	if err != nil {
		w.deadLetter(ctx, delivery, procErr)
		return
	}

	if err := w.deps.Tickets.Escalate(ctx, ticket, domain.EscalationReasonProcessingFailure, nil); err != nil {
		w.logger.Warn("failed to escalate after processing failure", zap.Error(err))
	}

	apology := &domain.Message{
		ConversationID: conversation.ID,
		Channel:        msg.Channel,
		Direction:      domain.DirectionOutbound,
		Role:           domain.RoleSystem,
		Body:           apologyText,
		DeliveryStatus: domain.DeliveryStatusPending,
		CreatedAt:      time.Now(),
	}
	if err := w.deps.Messages.Create(ctx, apology); err == nil {
		if _, err := w.deps.Delivery.Send(ctx, apology, destinationFor(msg.Contact)); err != nil {
			w.logger.Warn("apology delivery failed", zap.Error(err))
		}
	}

	w.deadLetter(ctx, delivery, procErr)
}

func (w *IngestionWorker) deadLetter(ctx context.Context, delivery bus.Delivery, cause error) {
	channelTag := ""
	if kind, err := channel.PeekChannel(delivery.Payload); err == nil {
		channelTag = string(kind)
	}

	letter := &domain.DeadLetter{
		Topic:   w.cfg.InboundStream,
		EventID: delivery.EventID,
		Channel: channelTag,
		Reason:  cause.Error(),
		Payload: delivery.Payload,
	}
	if err := w.deps.DeadLetters.Create(ctx, letter); err != nil {
		w.logger.Error("failed to store dead letter",
			zap.String("event_id", delivery.EventID),
			zap.Error(err))
	}

	w.deps.Metrics.RecordDeadLetter(channelTag)
	w.publishEvent(ctx, events.Event{
		Type: events.EventDeadLettered,
		Payload: events.DeadLetteredPayload{
			Topic:   w.cfg.InboundStream,
			EventID: delivery.EventID,
			Channel: channelTag,
			Reason:  cause.Error(),
		},
	})
}

func (w *IngestionWorker) sweepIdle(ctx context.Context) {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.deps.Sessions.CloseIdle(ctx, w.pipeline.IdleClose()); err != nil {
				w.logger.Warn("idle sweep failed", zap.Error(err))
			}
		}
	}
}

func (w *IngestionWorker) publishEvent(ctx context.Context, event events.Event) {
	if w.deps.Dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = w.deps.Dispatcher.Publish(ctx, event)
}

func displayNameFrom(msg *domain.InboundMessage) string {
	for _, key := range []string{"name", "display_name", "submitter_name"} {
		if value, ok := msg.Metadata[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func destinationFor(evidence domain.ContactEvidence) channel.Destination {
	return channel.Destination{
		Email:     evidence.Email,
		Phone:     evidence.Phone,
		AnonToken: evidence.AnonToken,
	}
}
