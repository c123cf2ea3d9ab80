package bus

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Memory is a channel-backed Bus for tests and single-process runs. It keeps
// the at-least-once contract's shape (attempt counter, handler-owned retry)
// without an external broker.
type Memory struct {
	mu     sync.Mutex
	topics map[string]chan Delivery
	nextID int64
}

// NewMemory creates an in-memory bus.
func NewMemory() *Memory {
	return &Memory{topics: make(map[string]chan Delivery)}
}

func (m *Memory) topic(name string) chan Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.topics[name]
	if !ok {
		ch = make(chan Delivery, 1024)
		m.topics[name] = ch
	}
	return ch
}

// Publish appends the payload to the topic.
func (m *Memory) Publish(ctx context.Context, topic, eventID string, attempt int, payload []byte) error {
	delivery := Delivery{
		ID:      strconv.FormatInt(atomic.AddInt64(&m.nextID, 1), 10),
		EventID: eventID,
		Attempt: attempt,
		Payload: payload,
	}
	select {
	case m.topic(topic) <- delivery:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume invokes handler for each delivery until ctx is cancelled. The group
// and consumer names are accepted for interface parity; a single in-process
// queue per topic stands in for a consumer group.
func (m *Memory) Consume(ctx context.Context, topic, group, consumer string, handler Handler) error {
	ch := m.topic(topic)
	for {
		select {
		case delivery := <-ch:
			_ = handler(ctx, delivery)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain synchronously hands every queued delivery on the topic to handler.
// Test helper: lets a test pump the queue without goroutines.
func (m *Memory) Drain(ctx context.Context, topic string, handler Handler) int {
	ch := m.topic(topic)
	count := 0
	for {
		select {
		case delivery := <-ch:
			_ = handler(ctx, delivery)
			count++
		default:
			return count
		}
	}
}

// Pending reports how many deliveries are queued on the topic.
func (m *Memory) Pending(topic string) int {
	return len(m.topic(topic))
}
