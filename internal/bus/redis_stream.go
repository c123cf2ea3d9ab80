package bus

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	fieldEventID = "event_id"
	fieldAttempt = "attempt"
	fieldPayload = "payload"
)

// RedisStreamBus implements Bus on Redis Streams. Consumer groups give
// at-least-once delivery with ordering preserved per stream.
type RedisStreamBus struct {
	client *redis.Client
	logger *zap.Logger
	block  time.Duration
}

// NewRedisStreamBus wraps a go-redis client.
func NewRedisStreamBus(client *redis.Client, logger *zap.Logger, block time.Duration) *RedisStreamBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if block <= 0 {
		block = 5 * time.Second
	}
	return &RedisStreamBus{client: client, logger: logger, block: block}
}

// Publish appends the payload to the topic stream.
func (b *RedisStreamBus) Publish(ctx context.Context, topic, eventID string, attempt int, payload []byte) error {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			fieldEventID: eventID,
			fieldAttempt: attempt,
			fieldPayload: payload,
		},
	}).Err()
}

// Consume reads the topic through the consumer group until ctx is cancelled.
// Entries are acknowledged after the handler returns; the handler owns retry.
func (b *RedisStreamBus) Consume(ctx context.Context, topic, group, consumer string, handler Handler) error {
	if err := b.ensureGroup(ctx, topic, group); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    b.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("bus read failed", zap.String("topic", topic), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				delivery := decodeEntry(entry)
				if err := handler(ctx, delivery); err != nil {
					b.logger.Error("bus handler failed",
						zap.String("topic", topic),
						zap.String("event_id", delivery.EventID),
						zap.Error(err))
				}
				if err := b.client.XAck(ctx, topic, group, entry.ID).Err(); err != nil {
					b.logger.Warn("bus ack failed", zap.String("entry_id", entry.ID), zap.Error(err))
				}
			}
		}
	}
}

func (b *RedisStreamBus) ensureGroup(ctx context.Context, topic, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func decodeEntry(entry redis.XMessage) Delivery {
	delivery := Delivery{ID: entry.ID}
	if raw, ok := entry.Values[fieldEventID].(string); ok {
		delivery.EventID = raw
	}
	if raw, ok := entry.Values[fieldAttempt].(string); ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			delivery.Attempt = parsed
		}
	}
	if raw, ok := entry.Values[fieldPayload].(string); ok {
		delivery.Payload = []byte(raw)
	}
	return delivery
}
