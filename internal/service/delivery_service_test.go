package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-engine/internal/channel"
	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// scriptedSender returns the queued errors in order, succeeding once the
// script is exhausted.
type scriptedSender struct {
	script []error
	calls  int
}

func (s *scriptedSender) Send(ctx context.Context, destination channel.Destination, body string) (channel.SendResult, error) {
	s.calls++
	if len(s.script) > 0 {
		err := s.script[0]
		s.script = s.script[1:]
		if err != nil {
			return channel.SendResult{}, err
		}
	}
	return channel.SendResult{ExternalID: "ext-1", Status: "accepted"}, nil
}

func newDeliveryFixture(sender channel.Sender) (*DeliveryService, *fakeDeliveryRepo, *fakeMessageRepo, *recordingDispatcher) {
	deliveries := newFakeDeliveryRepo()
	messages := newFakeMessageRepo()
	dispatcher := &recordingDispatcher{}
	registry := channel.NewSenderRegistry(sender, sender, sender)
	svc := NewDeliveryService(deliveries, messages, registry, dispatcher, config.DeliveryConfig{
		MaxAttempts:   3,
		BackoffBaseMS: 1,
	}, nil)
	svc.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return svc, deliveries, messages, dispatcher
}

func outboundMessage(t *testing.T, messages *fakeMessageRepo) *domain.Message {
	t.Helper()
	message := &domain.Message{
		ConversationID: "conv-1",
		Channel:        domain.ChannelEmail,
		Direction:      domain.DirectionOutbound,
		Role:           domain.RoleAgent,
		Body:           "hello",
		DeliveryStatus: domain.DeliveryStatusPending,
	}
	require.NoError(t, messages.Create(context.Background(), message))
	return message
}

func TestDeliverySend_FirstAttemptSucceeds(t *testing.T) {
	sender := &scriptedSender{}
	svc, deliveries, messages, dispatcher := newDeliveryFixture(sender)
	message := outboundMessage(t, messages)

	outcome, err := svc.Send(context.Background(), message, channel.Destination{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusDelivered, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "ext-1", outcome.ExternalID)

	require.Len(t, deliveries.attempts, 1)
	assert.Equal(t, domain.AttemptStatusDelivered, deliveries.attempts[0].Status)
	assert.Equal(t, domain.DeliveryStatusDelivered, message.DeliveryStatus)

	outcomes := dispatcher.byType(events.EventDeliveryOutcome)
	require.Len(t, outcomes, 1)
}

func TestDeliverySend_TransientFailureRetriesThenSucceeds(t *testing.T) {
	sender := &scriptedSender{script: []error{
		apperrors.NewDeliveryTransient(errors.New("connection reset")),
		apperrors.NewDeliveryTransient(errors.New("connection reset")),
		nil,
	}}
	svc, deliveries, messages, _ := newDeliveryFixture(sender)
	message := outboundMessage(t, messages)

	outcome, err := svc.Send(context.Background(), message, channel.Destination{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusDelivered, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)

	require.Len(t, deliveries.attempts, 3)
	assert.Equal(t, domain.AttemptStatusFailed, deliveries.attempts[0].Status)
	assert.Equal(t, domain.AttemptStatusFailed, deliveries.attempts[1].Status)
	assert.Equal(t, domain.AttemptStatusDelivered, deliveries.attempts[2].Status)
	for i, attempt := range deliveries.attempts {
		assert.Equal(t, i+1, attempt.AttemptNumber)
	}
}

func TestDeliverySend_ExhaustionIsTerminalNotAnError(t *testing.T) {
	transient := apperrors.NewDeliveryTransient(errors.New("smtp 421"))
	sender := &scriptedSender{script: []error{transient, transient, transient}}
	svc, deliveries, messages, dispatcher := newDeliveryFixture(sender)
	message := outboundMessage(t, messages)

	outcome, err := svc.Send(context.Background(), message, channel.Destination{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusFailed, outcome.Status)
	assert.Equal(t, 3, sender.calls)
	assert.Len(t, deliveries.attempts, 3)
	assert.Equal(t, domain.DeliveryStatusFailed, message.DeliveryStatus)

	outcomes := dispatcher.byType(events.EventDeliveryOutcome)
	require.Len(t, outcomes, 1)
	payload, ok := outcomes[0].Payload.(events.DeliveryOutcomePayload)
	require.True(t, ok)
	assert.Equal(t, domain.DeliveryStatusFailed, payload.Status)
	assert.NotEmpty(t, payload.Error)
}

func TestDeliverySend_PermanentFailureNeverRetries(t *testing.T) {
	sender := &scriptedSender{script: []error{
		apperrors.NewDeliveryPermanent(errors.New("mailbox does not exist")),
	}}
	svc, deliveries, messages, _ := newDeliveryFixture(sender)
	message := outboundMessage(t, messages)

	outcome, err := svc.Send(context.Background(), message, channel.Destination{Email: "bad@x.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusFailed, outcome.Status)
	assert.Equal(t, 1, sender.calls)
	assert.Len(t, deliveries.attempts, 1)
}

func TestDeliveryBackoff_Doubles(t *testing.T) {
	svc := &DeliveryService{cfg: config.DeliveryConfig{BackoffBaseMS: 250}}

	assert.Equal(t, 250*time.Millisecond, svc.backoff(1))
	assert.Equal(t, 500*time.Millisecond, svc.backoff(2))
	assert.Equal(t, time.Second, svc.backoff(3))
}
