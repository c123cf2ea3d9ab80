package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-engine/internal/domain"
)

// DeliveryRepository encapsulates delivery attempt persistence.
type DeliveryRepository interface {
	CreateAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error
	ListByMessage(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error)
}

type deliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository instantiates the repository.
func NewDeliveryRepository(pool *pgxpool.Pool) DeliveryRepository {
	return &deliveryRepository{pool: pool}
}

func (r *deliveryRepository) CreateAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	const query = `
        INSERT INTO delivery_attempts (message_id, attempt_number, status, error, attempted_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		attempt.MessageID,
		attempt.AttemptNumber,
		attempt.Status,
		attempt.Error,
		attempt.AttemptedAt,
	).Scan(&attempt.ID)
}

func (r *deliveryRepository) ListByMessage(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error) {
	const query = `
        SELECT id, message_id, attempt_number, status, error, attempted_at
        FROM delivery_attempts
        WHERE message_id=$1
        ORDER BY attempt_number`
	rows, err := r.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DeliveryAttempt
	for rows.Next() {
		var attempt domain.DeliveryAttempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.MessageID,
			&attempt.AttemptNumber,
			&attempt.Status,
			&attempt.Error,
			&attempt.AttemptedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attempt)
	}
	return result, rows.Err()
}
