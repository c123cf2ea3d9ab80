package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-engine/internal/domain"
)

// ConversationRepository encapsulates conversation persistence.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	// ListActiveByCustomer returns active conversations newest first.
	ListActiveByCustomer(ctx context.Context, customerID string) ([]domain.Conversation, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]domain.Conversation, error)
	Close(ctx context.Context, id string, resolution domain.ResolutionType, endedAt time.Time) error
	UpdateSentiment(ctx context.Context, id string, sentiment float64) error
	// CloseIdle closes active conversations whose last message is older than
	// cutoff and returns how many were closed.
	CloseIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository instantiates the repository.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{pool: pool}
}

const conversationColumns = `id, customer_id, initiating_channel, status, started_at, ended_at, sentiment_score, resolution_type`

func (r *conversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	const query = `
        INSERT INTO conversations (customer_id, initiating_channel, status, started_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		conversation.CustomerID,
		conversation.InitiatingChannel,
		conversation.Status,
		conversation.StartedAt,
	).Scan(&conversation.ID)
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id=$1`
	var conversation domain.Conversation
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&conversation.ID,
		&conversation.CustomerID,
		&conversation.InitiatingChannel,
		&conversation.Status,
		&conversation.StartedAt,
		&conversation.EndedAt,
		&conversation.SentimentScore,
		&conversation.ResolutionType,
	); err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *conversationRepository) ListActiveByCustomer(ctx context.Context, customerID string) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
        FROM conversations
        WHERE customer_id=$1 AND status=$2
        ORDER BY started_at DESC`
	rows, err := r.pool.Query(ctx, query, customerID, domain.ConversationStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConversations(rows)
}

func (r *conversationRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + conversationColumns + `
        FROM conversations
        WHERE customer_id=$1
        ORDER BY started_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConversations(rows)
}

func (r *conversationRepository) Close(ctx context.Context, id string, resolution domain.ResolutionType, endedAt time.Time) error {
	const query = `
        UPDATE conversations SET status=$1, resolution_type=$2, ended_at=$3
        WHERE id=$4 AND status=$5`
	cmd, err := r.pool.Exec(ctx, query,
		domain.ConversationStatusClosed,
		resolution,
		endedAt,
		id,
		domain.ConversationStatusActive,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *conversationRepository) UpdateSentiment(ctx context.Context, id string, sentiment float64) error {
	const query = `UPDATE conversations SET sentiment_score=$1 WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, sentiment, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *conversationRepository) CloseIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
        UPDATE conversations c SET status=$1, resolution_type=$2, ended_at=NOW()
        WHERE c.status=$3
          AND COALESCE(
              (SELECT MAX(m.created_at) FROM messages m WHERE m.conversation_id=c.id),
              c.started_at) < $4`
	cmd, err := r.pool.Exec(ctx, query,
		domain.ConversationStatusClosed,
		domain.ResolutionIdle,
		domain.ConversationStatusActive,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanConversations(rows pgx.Rows) ([]domain.Conversation, error) {
	var result []domain.Conversation
	for rows.Next() {
		var conversation domain.Conversation
		if err := rows.Scan(
			&conversation.ID,
			&conversation.CustomerID,
			&conversation.InitiatingChannel,
			&conversation.Status,
			&conversation.StartedAt,
			&conversation.EndedAt,
			&conversation.SentimentScore,
			&conversation.ResolutionType,
		); err != nil {
			return nil, err
		}
		result = append(result, conversation)
	}
	return result, rows.Err()
}
