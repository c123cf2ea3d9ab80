package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/repository"
)

// TicketService drives the ticket lifecycle and evaluates hard escalation
// triggers. ESCALATED is terminal: a human-handoff collaborator takes over.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	policy     config.PipelineConfig
	logger     *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository, dispatcher events.Dispatcher, policy config.PipelineConfig, logger *zap.Logger) *TicketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    tickets,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
	}
}

// EnsureOpen returns the conversation's ticket, creating it in OPEN state on
// the first inbound message. Safe under redelivery: at most one ticket exists
// per conversation.
func (s *TicketService) EnsureOpen(ctx context.Context, conversation *domain.Conversation, channel domain.Channel) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		ConversationID: conversation.ID,
		CustomerID:     conversation.CustomerID,
		SourceChannel:  channel,
		Category:       "general",
		Priority:       domain.TicketPriorityMedium,
		Status:         domain.TicketStatusOpen,
	}
	return s.tickets.CreateIfAbsent(ctx, ticket)
}

// KeywordTrigger matches body against the escalation keyword policy and
// returns the formatted escalation reason on a hit. It needs nothing but the
// raw body, so the dispatcher evaluates it before the responder runs.
func (s *TicketService) KeywordTrigger(body string) (string, bool) {
	lowered := strings.ToLower(body)
	for _, keyword := range s.policy.EscalationKeywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return fmt.Sprintf("%s:%s", domain.EscalationReasonKeyword, keyword), true
		}
	}
	return "", false
}

// EvaluateTriggers applies the hard escalation triggers in deterministic
// order: keyword policy first, then the sentiment floor, then the responder's
// explicit signal. The keyword result never depends on responder output.
func (s *TicketService) EvaluateTriggers(body string, sentiment *float64, responderEscalate bool, responderReason string) (bool, string) {
	if reason, ok := s.KeywordTrigger(body); ok {
		return true, reason
	}
	if sentiment != nil && *sentiment < s.policy.SentimentFloor {
		return true, fmt.Sprintf("%s:%.2f", domain.EscalationReasonSentiment, *sentiment)
	}
	if responderEscalate {
		reason := domain.EscalationReasonResponder
		if responderReason != "" {
			reason = fmt.Sprintf("%s:%s", domain.EscalationReasonResponder, responderReason)
		}
		return true, reason
	}
	return false, ""
}

// MarkInProgress transitions OPEN to IN_PROGRESS once an outbound response
// has been generated for the conversation.
func (s *TicketService) MarkInProgress(ctx context.Context, ticket *domain.Ticket) error {
	return s.transition(ctx, ticket, domain.TicketStatusInProgress, nil, nil)
}

// Resolve transitions IN_PROGRESS to RESOLVED when the responder signals
// resolution with no escalation.
func (s *TicketService) Resolve(ctx context.Context, ticket *domain.Ticket, notes string) error {
	var resolutionNotes *string
	if notes != "" {
		resolutionNotes = &notes
	}
	return s.transition(ctx, ticket, domain.TicketStatusResolved, nil, resolutionNotes)
}

// Escalate moves the ticket to its terminal ESCALATED state and emits the
// handoff event with a snapshot of recent conversation history.
func (s *TicketService) Escalate(ctx context.Context, ticket *domain.Ticket, reason string, snapshot []domain.Message) error {
	if ticket.Status == domain.TicketStatusEscalated {
		return nil
	}
	if err := s.transition(ctx, ticket, domain.TicketStatusEscalated, &reason, nil); err != nil {
		return err
	}

	urgency := domain.TicketPriorityHigh
	if strings.HasPrefix(reason, domain.EscalationReasonKeyword) {
		urgency = domain.TicketPriorityUrgent
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type: events.EventTicketEscalated,
		Payload: events.TicketEscalatedPayload{
			TicketID:       ticket.ID,
			ConversationID: ticket.ConversationID,
			Reason:         reason,
			Urgency:        urgency,
			Snapshot:       snapshot,
		},
	})
	s.logger.Info("ticket escalated",
		zap.String("ticket_id", ticket.ID),
		zap.String("reason", reason))
	return nil
}

// allowedTransitions encodes the monotonic lifecycle. ESCALATED and RESOLVED
// have no outgoing transitions for automated handling.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusEscalated},
	domain.TicketStatusInProgress: {domain.TicketStatusResolved, domain.TicketStatusEscalated},
	domain.TicketStatusResolved:   {},
	domain.TicketStatusEscalated:  {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s *TicketService) transition(ctx context.Context, ticket *domain.Ticket, next domain.TicketStatus, escalationReason, resolutionNotes *string) error {
	if ticket.Status == next {
		// Idempotent under event redelivery.
		return nil
	}
	if !isValidTransition(ticket.Status, next) {
		return fmt.Errorf("invalid ticket transition %s -> %s", ticket.Status, next)
	}
	if err := s.tickets.UpdateStatus(ctx, ticket.ID, next, escalationReason, resolutionNotes); err != nil {
		return err
	}
	ticket.Status = next
	if escalationReason != nil {
		ticket.EscalationReason = escalationReason
	}
	if resolutionNotes != nil {
		ticket.ResolutionNotes = resolutionNotes
	}
	ticket.UpdatedAt = time.Now()
	return nil
}
