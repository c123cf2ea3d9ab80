package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-engine/internal/domain"
)

// MessagePage is one cursor page of conversation history.
type MessagePage struct {
	Messages   []domain.Message
	HasMore    bool
	NextCursor int64
}

// MessageRepository encapsulates message persistence.
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// GetByChannelMessageID looks up an inbound message by its external
	// correlation id; pgx.ErrNoRows when absent.
	GetByChannelMessageID(ctx context.Context, channel domain.Channel, channelMessageID string) (*domain.Message, error)
	// ListByConversation pages through history in insertion order (seq).
	// The sort key and the cursor must agree: inbound rows carry the
	// channel's received_at as created_at, which can lag rows inserted
	// earlier, so paging on seq while sorting by timestamp would skip rows.
	// afterSeq=0 starts from the beginning.
	ListByConversation(ctx context.Context, conversationID string, afterSeq int64, limit int) (*MessagePage, error)
	UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) error
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates the repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `id, seq, conversation_id, channel, direction, role, body, channel_message_id, delivery_status, created_at`

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	const query = `
        INSERT INTO messages (conversation_id, channel, direction, role, body, channel_message_id, delivery_status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, seq`
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	return r.pool.QueryRow(ctx, query,
		message.ConversationID,
		message.Channel,
		message.Direction,
		message.Role,
		message.Body,
		message.ChannelMessageID,
		message.DeliveryStatus,
		message.CreatedAt,
	).Scan(&message.ID, &message.Seq)
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *messageRepository) GetByChannelMessageID(ctx context.Context, channel domain.Channel, channelMessageID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages WHERE channel=$1 AND channel_message_id=$2`
	return r.fetchSingle(ctx, query, channel, channelMessageID)
}

func (r *messageRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Message, error) {
	var message domain.Message
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&message.ID,
		&message.Seq,
		&message.ConversationID,
		&message.Channel,
		&message.Direction,
		&message.Role,
		&message.Body,
		&message.ChannelMessageID,
		&message.DeliveryStatus,
		&message.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string, afterSeq int64, limit int) (*MessagePage, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE conversation_id=$1 AND seq > $2
        ORDER BY seq
        LIMIT $3`
	// Fetch one extra row to learn whether more pages exist.
	rows, err := r.pool.Query(ctx, query, conversationID, afterSeq, limit+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var message domain.Message
		if err := rows.Scan(
			&message.ID,
			&message.Seq,
			&message.ConversationID,
			&message.Channel,
			&message.Direction,
			&message.Role,
			&message.Body,
			&message.ChannelMessageID,
			&message.DeliveryStatus,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &MessagePage{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		page.HasMore = true
	}
	if len(page.Messages) > 0 {
		page.NextCursor = page.Messages[len(page.Messages)-1].Seq
	}
	return page, nil
}

func (r *messageRepository) UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	const query = `UPDATE messages SET delivery_status=$1 WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
