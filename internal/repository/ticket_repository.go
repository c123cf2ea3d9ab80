package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-engine/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// CreateIfAbsent inserts the ticket unless one already exists for the
	// conversation; in that case the existing ticket is returned.
	CreateIfAbsent(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByConversation(ctx context.Context, conversationID string) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, escalationReason, resolutionNotes *string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, conversation_id, customer_id, source_channel, category, priority, status, escalation_reason, resolution_notes, created_at, updated_at`

func (r *ticketRepository) CreateIfAbsent(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	const query = `
        INSERT INTO tickets (conversation_id, customer_id, source_channel, category, priority, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (conversation_id) DO NOTHING
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.ConversationID,
		ticket.CustomerID,
		ticket.SourceChannel,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetByConversation(ctx, ticket.ConversationID)
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByConversation(ctx context.Context, conversationID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE conversation_id=$1`
	return r.fetchSingle(ctx, query, conversationID)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.ConversationID,
		&ticket.CustomerID,
		&ticket.SourceChannel,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.EscalationReason,
		&ticket.ResolutionNotes,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, escalationReason, resolutionNotes *string) error {
	const query = `
        UPDATE tickets SET status=$1, escalation_reason=COALESCE($2, escalation_reason),
            resolution_notes=COALESCE($3, resolution_notes), updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query, status, escalationReason, resolutionNotes, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
