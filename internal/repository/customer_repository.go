package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/persistence"
)

// ErrIdentifierTaken signals that the (identifier_type, value) pair was
// claimed by a concurrent insert. Callers re-fetch to learn the winner.
var ErrIdentifierTaken = errors.New("identifier already bound to a customer")

// CustomerRepository encapsulates customer and identifier persistence.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	GetIdentifier(ctx context.Context, identifierType domain.IdentifierType, value string) (*domain.Identifier, error)
	ListIdentifiers(ctx context.Context, customerID string) ([]domain.Identifier, error)
	// CreateWithIdentifier inserts a new customer and its first identifier in
	// one transaction. Returns ErrIdentifierTaken (with everything rolled
	// back) when the identifier was inserted concurrently.
	CreateWithIdentifier(ctx context.Context, customer *domain.Customer, identifier *domain.Identifier) error
	MarkIdentifierVerified(ctx context.Context, identifierID string) error
}

type customerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a Postgres-backed implementation.
func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	const query = `
        SELECT id, email, phone, display_name, created_at
        FROM customers WHERE id=$1`

	var customer domain.Customer
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&customer.ID,
		&customer.Email,
		&customer.Phone,
		&customer.DisplayName,
		&customer.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) GetIdentifier(ctx context.Context, identifierType domain.IdentifierType, value string) (*domain.Identifier, error) {
	const query = `
        SELECT id, customer_id, identifier_type, value, verified, created_at
        FROM identifiers WHERE identifier_type=$1 AND value=$2`

	var identifier domain.Identifier
	if err := r.pool.QueryRow(ctx, query, identifierType, value).Scan(
		&identifier.ID,
		&identifier.CustomerID,
		&identifier.Type,
		&identifier.Value,
		&identifier.Verified,
		&identifier.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &identifier, nil
}

func (r *customerRepository) ListIdentifiers(ctx context.Context, customerID string) ([]domain.Identifier, error) {
	const query = `
        SELECT id, customer_id, identifier_type, value, verified, created_at
        FROM identifiers WHERE customer_id=$1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Identifier
	for rows.Next() {
		var identifier domain.Identifier
		if err := rows.Scan(
			&identifier.ID,
			&identifier.CustomerID,
			&identifier.Type,
			&identifier.Value,
			&identifier.Verified,
			&identifier.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, identifier)
	}
	return result, rows.Err()
}

func (r *customerRepository) CreateWithIdentifier(ctx context.Context, customer *domain.Customer, identifier *domain.Identifier) error {
	return persistence.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertCustomer = `
            INSERT INTO customers (email, phone, display_name)
            VALUES ($1, $2, $3)
            RETURNING id, created_at`
		if err := tx.QueryRow(ctx, insertCustomer,
			customer.Email,
			customer.Phone,
			customer.DisplayName,
		).Scan(&customer.ID, &customer.CreatedAt); err != nil {
			return err
		}

		const insertIdentifier = `
            INSERT INTO identifiers (customer_id, identifier_type, value, verified)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (identifier_type, value) DO NOTHING
            RETURNING id, created_at`
		identifier.CustomerID = customer.ID
		err := tx.QueryRow(ctx, insertIdentifier,
			identifier.CustomerID,
			identifier.Type,
			identifier.Value,
			identifier.Verified,
		).Scan(&identifier.ID, &identifier.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent worker claimed the identifier; roll back the
			// customer row so no duplicate identity is created.
			return ErrIdentifierTaken
		}
		return err
	})
}

func (r *customerRepository) MarkIdentifierVerified(ctx context.Context, identifierID string) error {
	const query = `UPDATE identifiers SET verified=TRUE WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, identifierID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
