package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-engine/internal/domain"
)

// DeadLetterRepository stores events that could not be processed.
type DeadLetterRepository interface {
	Create(ctx context.Context, letter *domain.DeadLetter) error
	List(ctx context.Context, limit, offset int) ([]domain.DeadLetter, error)
}

type deadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepository instantiates the repository.
func NewDeadLetterRepository(pool *pgxpool.Pool) DeadLetterRepository {
	return &deadLetterRepository{pool: pool}
}

func (r *deadLetterRepository) Create(ctx context.Context, letter *domain.DeadLetter) error {
	const query = `
        INSERT INTO dead_letters (topic, event_id, channel, reason, payload)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	payload := letter.Payload
	if payload == nil {
		payload = []byte{}
	}
	return r.pool.QueryRow(ctx, query,
		letter.Topic,
		letter.EventID,
		letter.Channel,
		letter.Reason,
		payload,
	).Scan(&letter.ID, &letter.CreatedAt)
}

func (r *deadLetterRepository) List(ctx context.Context, limit, offset int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, topic, event_id, channel, reason, payload, created_at
        FROM dead_letters
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DeadLetter
	for rows.Next() {
		var letter domain.DeadLetter
		if err := rows.Scan(
			&letter.ID,
			&letter.Topic,
			&letter.EventID,
			&letter.Channel,
			&letter.Reason,
			&letter.Payload,
			&letter.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, letter)
	}
	return result, rows.Err()
}
