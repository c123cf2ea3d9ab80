package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/repository"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// IdentityLocker serializes identity creation per identifier value. A nil
// locker is valid: the database uniqueness constraint alone still prevents
// duplicate customers, the lock only reduces wasted transaction rollbacks.
type IdentityLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// IdentityService maps contact evidence to a stable customer record. Two
// simultaneous inbound events bearing the same identifier value resolve to
// the same customer under concurrent workers.
type IdentityService struct {
	customers repository.CustomerRepository
	locker    IdentityLocker
	logger    *zap.Logger
}

// NewIdentityService constructs the service.
func NewIdentityService(customers repository.CustomerRepository, locker IdentityLocker, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{customers: customers, locker: locker, logger: logger}
}

// Resolve returns the customer for the strongest available evidence, creating
// customer and identifier atomically when no match exists.
func (s *IdentityService) Resolve(ctx context.Context, evidence domain.ContactEvidence, displayName string) (*domain.Customer, error) {
	identifierType, value, ok := evidence.Strongest()
	if !ok {
		return nil, apperrors.NewValidationError("contact evidence required", nil)
	}

	customer, err := s.lookup(ctx, identifierType, value)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	release, err := s.acquireLock(ctx, identifierType, value)
	if err != nil {
		s.logger.Warn("identity lock unavailable, relying on uniqueness constraint",
			zap.String("identifier_type", string(identifierType)),
			zap.Error(err))
	} else {
		defer release()
	}

	// Re-check under the lock: a concurrent worker may have won the race
	// between our miss and the lock acquisition.
	customer, err = s.lookup(ctx, identifierType, value)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	return s.create(ctx, evidence, identifierType, value, displayName)
}

func (s *IdentityService) lookup(ctx context.Context, identifierType domain.IdentifierType, value string) (*domain.Customer, error) {
	identifier, err := s.customers.GetIdentifier(ctx, identifierType, value)
	if err != nil {
		return nil, err
	}
	return s.customers.GetByID(ctx, identifier.CustomerID)
}

func (s *IdentityService) create(ctx context.Context, evidence domain.ContactEvidence, identifierType domain.IdentifierType, value, displayName string) (*domain.Customer, error) {
	customer := &domain.Customer{DisplayName: displayName}
	if evidence.Email != "" {
		email := evidence.Email
		customer.Email = &email
	}
	if evidence.Phone != "" {
		phone := evidence.Phone
		customer.Phone = &phone
	}

	identifier := &domain.Identifier{Type: identifierType, Value: value}
	err := s.customers.CreateWithIdentifier(ctx, customer, identifier)
	if errors.Is(err, repository.ErrIdentifierTaken) {
		// Insert-or-fetch: the constraint fired, so another worker created
		// the identity first. Fetch the winner.
		winner, fetchErr := s.lookup(ctx, identifierType, value)
		if fetchErr != nil {
			return nil, apperrors.NewIdentityConflict(fetchErr)
		}
		return winner, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("customer created",
		zap.String("customer_id", customer.ID),
		zap.String("identifier_type", string(identifierType)))
	return customer, nil
}

func (s *IdentityService) acquireLock(ctx context.Context, identifierType domain.IdentifierType, value string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, fmt.Sprintf("identity:%s:%s", identifierType, value))
}

// redisLocker implements IdentityLocker with a Redis SET NX lease.
type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker builds a Redis-backed identity locker.
func NewRedisLocker(client *redis.Client, ttl time.Duration) IdentityLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &redisLocker{client: client, ttl: ttl}
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, "lock:"+key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.New("identity lock acquisition timed out")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return func() {
		// Best-effort release; the lease expires on its own otherwise.
		value, err := l.client.Get(context.Background(), "lock:"+key).Result()
		if err == nil && value == token {
			_ = l.client.Del(context.Background(), "lock:"+key).Err()
		}
	}, nil
}
