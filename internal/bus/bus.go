// Package bus abstracts the partitioned, at-least-once event bus the
// ingestion pipeline consumes from and publishes derived events onto.
package bus

import "context"

// Delivery is one received bus entry. Attempt counts how many times the
// pipeline has tried to process the underlying event; redelivery of the same
// EventID is expected and handled by the consumer's idempotency check.
type Delivery struct {
	ID      string
	EventID string
	Attempt int
	Payload []byte
}

// Handler processes one delivery. The delivery is acknowledged regardless of
// the returned error; retry is the handler's responsibility (re-publish with
// an incremented attempt, or dead-letter).
type Handler func(ctx context.Context, delivery Delivery) error

// Bus publishes payloads to topics and consumes them through named groups.
type Bus interface {
	Publish(ctx context.Context, topic, eventID string, attempt int, payload []byte) error
	// Consume blocks, invoking handler for each delivery on the topic, until
	// ctx is cancelled.
	Consume(ctx context.Context, topic, group, consumer string, handler Handler) error
}
