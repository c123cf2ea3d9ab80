package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/bus"
	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/repository"
)

// NotificationService bridges in-process derived events onto the outbound bus
// topics for operator visibility and persists pipeline metric samples.
type NotificationService struct {
	dispatcher events.Dispatcher
	outbound   bus.Bus
	metrics    repository.MetricsRepository
	cfg        config.BusConfig
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, outbound bus.Bus, metrics repository.MetricsRepository, cfg config.BusConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		outbound:   outbound,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to derived events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleEscalation)
	n.dispatcher.Subscribe(events.EventDeliveryOutcome, n.handleDeliveryOutcome)
	n.dispatcher.Subscribe(events.EventMetricsRecorded, n.handleMetrics)
	n.dispatcher.Subscribe(events.EventConversationInconsistency, n.handleInconsistency)
	n.dispatcher.Subscribe(events.EventDeadLettered, n.handleDeadLettered)
}

func (n *NotificationService) handleEscalation(ctx context.Context, event events.Event) error {
	return n.republish(ctx, n.cfg.EscalationStream, event)
}

func (n *NotificationService) handleDeliveryOutcome(ctx context.Context, event events.Event) error {
	return n.republish(ctx, n.cfg.DeliveryStream, event)
}

func (n *NotificationService) handleMetrics(ctx context.Context, event events.Event) error {
	if payload, ok := event.Payload.(events.MetricsRecordedPayload); ok && n.metrics != nil {
		sample := &repository.MetricSample{
			Channel:    payload.Channel,
			LatencyMS:  payload.LatencyMS,
			Escalated:  payload.Escalated,
			ToolCalls:  payload.ToolCallsCount,
			RecordedAt: event.Timestamp,
		}
		if err := n.metrics.Record(ctx, sample); err != nil {
			n.logger.Warn("failed to persist metric sample", zap.Error(err))
		}
	}
	return n.republish(ctx, n.cfg.MetricsStream, event)
}

func (n *NotificationService) handleInconsistency(ctx context.Context, event events.Event) error {
	n.logger.Warn("conversation inconsistency observed", zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleDeadLettered(ctx context.Context, event events.Event) error {
	n.logger.Warn("event dead-lettered", zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) republish(ctx context.Context, topic string, event events.Event) error {
	if n.outbound == nil || topic == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.outbound.Publish(ctx, topic, event.ID, 0, payload)
}
