package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/events"
	"github.com/spec-kit/support-engine/internal/repository"
)

// fakeCustomerRepo keeps customers and identifiers in maps, enforcing the
// (type, value) uniqueness the real table guarantees.
type fakeCustomerRepo struct {
	mu          sync.Mutex
	nextID      int
	customers   map[string]*domain.Customer
	identifiers map[string]*domain.Identifier

	createErr error
	creates   int
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{
		customers:   make(map[string]*domain.Customer),
		identifiers: make(map[string]*domain.Identifier),
	}
}

func identifierKey(t domain.IdentifierType, value string) string {
	return string(t) + "|" + value
}

func (f *fakeCustomerRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	customer, ok := f.customers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *customer
	return &cp, nil
}

func (f *fakeCustomerRepo) GetIdentifier(ctx context.Context, identifierType domain.IdentifierType, value string) (*domain.Identifier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identifier, ok := f.identifiers[identifierKey(identifierType, value)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *identifier
	return &cp, nil
}

func (f *fakeCustomerRepo) ListIdentifiers(ctx context.Context, customerID string) ([]domain.Identifier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Identifier
	for _, identifier := range f.identifiers {
		if identifier.CustomerID == customerID {
			out = append(out, *identifier)
		}
	}
	return out, nil
}

func (f *fakeCustomerRepo) CreateWithIdentifier(ctx context.Context, customer *domain.Customer, identifier *domain.Identifier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	key := identifierKey(identifier.Type, identifier.Value)
	if _, exists := f.identifiers[key]; exists {
		return repository.ErrIdentifierTaken
	}
	f.nextID++
	customer.ID = "cust-" + strconv.Itoa(f.nextID)
	customer.CreatedAt = time.Now()
	identifier.ID = "ident-" + strconv.Itoa(f.nextID)
	identifier.CustomerID = customer.ID
	cp := *customer
	f.customers[customer.ID] = &cp
	ip := *identifier
	f.identifiers[key] = &ip
	return nil
}

func (f *fakeCustomerRepo) MarkIdentifierVerified(ctx context.Context, identifierID string) error {
	return nil
}

// seed inserts an existing customer bound to one identifier.
func (f *fakeCustomerRepo) seed(customerID string, identifierType domain.IdentifierType, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[customerID] = &domain.Customer{ID: customerID, CreatedAt: time.Now()}
	f.identifiers[identifierKey(identifierType, value)] = &domain.Identifier{
		ID:         "ident-" + customerID,
		CustomerID: customerID,
		Type:       identifierType,
		Value:      value,
	}
}

// fakeConversationRepo stores conversations in memory.
type fakeConversationRepo struct {
	mu            sync.Mutex
	nextID        int
	conversations map[string]*domain.Conversation

	closeCalls []string
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]*domain.Conversation)}
}

func (f *fakeConversationRepo) Create(ctx context.Context, conversation *domain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	conversation.ID = "conv-" + strconv.Itoa(f.nextID)
	cp := *conversation
	f.conversations[conversation.ID] = &cp
	return nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conversation, ok := f.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *conversation
	return &cp, nil
}

func (f *fakeConversationRepo) ListActiveByCustomer(ctx context.Context, customerID string) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Conversation
	for _, conversation := range f.conversations {
		if conversation.CustomerID == customerID && conversation.Status == domain.ConversationStatusActive {
			out = append(out, *conversation)
		}
	}
	// Most recently started first, matching the query ordering.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartedAt.After(out[i].StartedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]domain.Conversation, error) {
	return f.ListActiveByCustomer(ctx, customerID)
}

func (f *fakeConversationRepo) Close(ctx context.Context, id string, resolution domain.ResolutionType, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conversation, ok := f.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	conversation.Status = domain.ConversationStatusClosed
	conversation.ResolutionType = &resolution
	conversation.EndedAt = &endedAt
	f.closeCalls = append(f.closeCalls, id)
	return nil
}

func (f *fakeConversationRepo) UpdateSentiment(ctx context.Context, id string, sentiment float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conversation, ok := f.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	conversation.SentimentScore = &sentiment
	return nil
}

func (f *fakeConversationRepo) CloseIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeConversationRepo) seedActive(id, customerID string, channel domain.Channel, startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[id] = &domain.Conversation{
		ID:                id,
		CustomerID:        customerID,
		InitiatingChannel: channel,
		Status:            domain.ConversationStatusActive,
		StartedAt:         startedAt,
	}
}

// fakeTicketRepo stores tickets keyed by conversation.
type fakeTicketRepo struct {
	mu      sync.Mutex
	nextID  int
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (f *fakeTicketRepo) CreateIfAbsent(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.tickets[ticket.ConversationID]; ok {
		cp := *existing
		return &cp, nil
	}
	f.nextID++
	ticket.ID = "ticket-" + strconv.Itoa(f.nextID)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	cp := *ticket
	f.tickets[ticket.ConversationID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ticket := range f.tickets {
		if ticket.ID == id {
			cp := *ticket
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTicketRepo) GetByConversation(ctx context.Context, conversationID string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[conversationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *ticket
	return &cp, nil
}

func (f *fakeTicketRepo) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, escalationReason, resolutionNotes *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ticket := range f.tickets {
		if ticket.ID == id {
			ticket.Status = status
			if escalationReason != nil {
				ticket.EscalationReason = escalationReason
			}
			if resolutionNotes != nil {
				ticket.ResolutionNotes = resolutionNotes
			}
			ticket.UpdatedAt = time.Now()
			return nil
		}
	}
	return pgx.ErrNoRows
}

// fakeMessageRepo stores messages with an incrementing seq.
type fakeMessageRepo struct {
	mu       sync.Mutex
	nextSeq  int64
	messages []*domain.Message

	updateStatusCalls []domain.DeliveryStatus
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	message.Seq = f.nextSeq
	message.ID = "msg-" + strconv.FormatInt(f.nextSeq, 10)
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	cp := *message
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, message := range f.messages {
		if message.ID == id {
			cp := *message
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeMessageRepo) GetByChannelMessageID(ctx context.Context, channel domain.Channel, channelMessageID string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, message := range f.messages {
		if message.Channel == channel && message.ChannelMessageID == channelMessageID {
			cp := *message
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID string, afterSeq int64, limit int) (*repository.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	page := &repository.MessagePage{}
	for _, message := range f.messages {
		if message.ConversationID != conversationID || message.Seq <= afterSeq {
			continue
		}
		if len(page.Messages) == limit {
			page.HasMore = true
			break
		}
		page.Messages = append(page.Messages, *message)
	}
	if len(page.Messages) > 0 {
		page.NextCursor = page.Messages[len(page.Messages)-1].Seq
	}
	return page, nil
}

func (f *fakeMessageRepo) UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateStatusCalls = append(f.updateStatusCalls, status)
	for _, message := range f.messages {
		if message.ID == id {
			message.DeliveryStatus = status
			return nil
		}
	}
	return pgx.ErrNoRows
}

// fakeDeliveryRepo records attempts in order.
type fakeDeliveryRepo struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{}
}

func (f *fakeDeliveryRepo) CreateAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt.ID = "attempt-" + strconv.Itoa(len(f.attempts)+1)
	f.attempts = append(f.attempts, *attempt)
	return nil
}

func (f *fakeDeliveryRepo) ListByMessage(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, attempt := range f.attempts {
		if attempt.MessageID == messageID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

// recordingDispatcher captures published events synchronously.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}
