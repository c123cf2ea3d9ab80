package observability

import (
	"strconv"
	"sync"
	"time"
)

// ChannelCounters aggregates pipeline outcomes for one channel.
type ChannelCounters struct {
	Ingested       int64
	Deduplicated   int64
	Escalated      int64
	DeadLettered   int64
	Delivered      int64
	DeliveryFailed int64
	TotalLatencyMS int64
}

// Metrics provides in-memory counters for the pipeline and the HTTP surface.
// Durable, window-queryable metrics live in the pipeline_metrics table; these
// counters back health and log reporting.
type Metrics struct {
	mu           sync.Mutex
	channels     map[string]*ChannelCounters
	requestCount map[string]int64
	errorCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		channels:     make(map[string]*ChannelCounters),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordIngest records one processed inbound event.
func (m *Metrics) RecordIngest(channel string, latency time.Duration, escalated bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.channel(channel)
	c.Ingested++
	c.TotalLatencyMS += latency.Milliseconds()
	if escalated {
		c.Escalated++
	}
}

// RecordDedup records a skipped redelivered event.
func (m *Metrics) RecordDedup(channel string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel(channel).Deduplicated++
}

// RecordDeadLetter records an event routed to the dead-letter path.
func (m *Metrics) RecordDeadLetter(channel string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel(channel).DeadLettered++
}

// RecordDelivery records a terminal delivery outcome.
func (m *Metrics) RecordDelivery(channel string, delivered bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.channel(channel)
	if delivered {
		c.Delivered++
	} else {
		c.DeliveryFailed++
	}
}

// Snapshot copies the per-channel counters.
func (m *Metrics) Snapshot() map[string]ChannelCounters {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ChannelCounters, len(m.channels))
	for name, counters := range m.channels {
		out[name] = *counters
	}
	return out
}

// RecordRequest increments counters for HTTP requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments HTTP error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

func (m *Metrics) channel(name string) *ChannelCounters {
	c, ok := m.channels[name]
	if !ok {
		c = &ChannelCounters{}
		m.channels[name] = c
	}
	return c
}
