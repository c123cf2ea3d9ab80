package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/repository"
)

// SessionService decides whether an inbound message continues an existing
// conversation or starts a new one.
type SessionService struct {
	conversations repository.ConversationRepository
	dispatcher    events.Dispatcher
	window        time.Duration
	logger        *zap.Logger
}

// NewSessionService constructs the service. window is the continuity window.
func NewSessionService(conversations repository.ConversationRepository, dispatcher events.Dispatcher, window time.Duration, logger *zap.Logger) *SessionService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		conversations: conversations,
		dispatcher:    dispatcher,
		window:        window,
		logger:        logger,
	}
}

// Attach returns the conversation the message belongs to, creating a new one
// when no active conversation falls within the continuity window. Reuse is
// cross-channel: an active in-window conversation is reused regardless of
// which channel originated it. The returned bool reports whether a new
// conversation was created.
func (s *SessionService) Attach(ctx context.Context, customerID string, channel domain.Channel, messageTimestamp time.Time) (*domain.Conversation, bool, error) {
	actives, err := s.conversations.ListActiveByCustomer(ctx, customerID)
	if err != nil {
		return nil, false, err
	}

	if len(actives) > 1 {
		// Should not happen under correct locking; pick the most recently
		// started and flag the inconsistency rather than merging histories.
		ids := make([]string, 0, len(actives))
		for _, conversation := range actives {
			ids = append(ids, conversation.ID)
		}
		s.logger.Warn("multiple active conversations for customer",
			zap.String("customer_id", customerID),
			zap.Strings("conversation_ids", ids))
		publishEvent(ctx, s.dispatcher, events.Event{
			Type: events.EventConversationInconsistency,
			Payload: events.ConversationInconsistencyPayload{
				CustomerID:      customerID,
				ActiveCount:     len(actives),
				ConversationIDs: ids,
				ChosenID:        actives[0].ID,
			},
		})
	}

	if len(actives) > 0 {
		candidate := actives[0]
		if s.inWindow(candidate.StartedAt, messageTimestamp) {
			return &candidate, false, nil
		}
		// The active conversation fell out of the window; close it so the
		// one-active-per-customer invariant holds for the replacement.
		if err := s.conversations.Close(ctx, candidate.ID, domain.ResolutionIdle, messageTimestamp); err != nil {
			s.logger.Warn("failed to close stale conversation",
				zap.String("conversation_id", candidate.ID),
				zap.Error(err))
		}
	}

	conversation := &domain.Conversation{
		CustomerID:        customerID,
		InitiatingChannel: channel,
		Status:            domain.ConversationStatusActive,
		StartedAt:         messageTimestamp,
	}
	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, false, err
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type: events.EventConversationStarted,
		Payload: events.ConversationStartedPayload{
			ConversationID: conversation.ID,
			CustomerID:     customerID,
			Channel:        channel,
		},
	})
	return conversation, true, nil
}

// Close ends a conversation with the given resolution.
func (s *SessionService) Close(ctx context.Context, conversationID string, resolution domain.ResolutionType) error {
	return s.conversations.Close(ctx, conversationID, resolution, time.Now())
}

// RecordSentiment stores the latest sentiment score on the conversation.
func (s *SessionService) RecordSentiment(ctx context.Context, conversationID string, sentiment float64) error {
	return s.conversations.UpdateSentiment(ctx, conversationID, sentiment)
}

// CloseIdle closes active conversations with no message activity for idleFor.
func (s *SessionService) CloseIdle(ctx context.Context, idleFor time.Duration) (int64, error) {
	closed, err := s.conversations.CloseIdle(ctx, time.Now().Add(-idleFor))
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		s.logger.Info("closed idle conversations", zap.Int64("count", closed))
	}
	return closed, nil
}

func (s *SessionService) inWindow(startedAt, messageTimestamp time.Time) bool {
	elapsed := messageTimestamp.Sub(startedAt)
	if elapsed < 0 {
		// Clock skew between channel adapters; treat as in-window.
		return true
	}
	return elapsed <= s.window
}
