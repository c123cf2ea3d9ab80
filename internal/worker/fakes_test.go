package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/repository"
	"github.com/spec-kit/support-engine/internal/responder"
)

type memCustomerRepo struct {
	mu          sync.Mutex
	nextID      int
	customers   map[string]*domain.Customer
	identifiers map[string]*domain.Identifier
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{
		customers:   make(map[string]*domain.Customer),
		identifiers: make(map[string]*domain.Identifier),
	}
}

func identKey(t domain.IdentifierType, value string) string {
	return string(t) + "|" + value
}

func (m *memCustomerRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer, ok := m.customers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *customer
	return &cp, nil
}

func (m *memCustomerRepo) GetIdentifier(ctx context.Context, identifierType domain.IdentifierType, value string) (*domain.Identifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identifier, ok := m.identifiers[identKey(identifierType, value)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *identifier
	return &cp, nil
}

func (m *memCustomerRepo) ListIdentifiers(ctx context.Context, customerID string) ([]domain.Identifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Identifier
	for _, identifier := range m.identifiers {
		if identifier.CustomerID == customerID {
			out = append(out, *identifier)
		}
	}
	return out, nil
}

func (m *memCustomerRepo) CreateWithIdentifier(ctx context.Context, customer *domain.Customer, identifier *domain.Identifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := identKey(identifier.Type, identifier.Value)
	if _, exists := m.identifiers[key]; exists {
		return repository.ErrIdentifierTaken
	}
	m.nextID++
	customer.ID = "cust-" + strconv.Itoa(m.nextID)
	customer.CreatedAt = time.Now()
	identifier.CustomerID = customer.ID
	cc := *customer
	m.customers[customer.ID] = &cc
	ic := *identifier
	m.identifiers[key] = &ic
	return nil
}

func (m *memCustomerRepo) MarkIdentifierVerified(ctx context.Context, identifierID string) error {
	return nil
}

func (m *memCustomerRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.customers)
}

type memConversationRepo struct {
	mu            sync.Mutex
	nextID        int
	conversations map[string]*domain.Conversation
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{conversations: make(map[string]*domain.Conversation)}
}

func (m *memConversationRepo) Create(ctx context.Context, conversation *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	conversation.ID = "conv-" + strconv.Itoa(m.nextID)
	cp := *conversation
	m.conversations[conversation.ID] = &cp
	return nil
}

func (m *memConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *conversation
	return &cp, nil
}

func (m *memConversationRepo) ListActiveByCustomer(ctx context.Context, customerID string) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Conversation
	for _, conversation := range m.conversations {
		if conversation.CustomerID == customerID && conversation.Status == domain.ConversationStatusActive {
			out = append(out, *conversation)
		}
	}
	return out, nil
}

func (m *memConversationRepo) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]domain.Conversation, error) {
	return m.ListActiveByCustomer(ctx, customerID)
}

func (m *memConversationRepo) Close(ctx context.Context, id string, resolution domain.ResolutionType, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	conversation.Status = domain.ConversationStatusClosed
	conversation.ResolutionType = &resolution
	conversation.EndedAt = &endedAt
	return nil
}

func (m *memConversationRepo) UpdateSentiment(ctx context.Context, id string, sentiment float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversation, ok := m.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	conversation.SentimentScore = &sentiment
	return nil
}

func (m *memConversationRepo) CloseIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type memTicketRepo struct {
	mu      sync.Mutex
	nextID  int
	tickets map[string]*domain.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (m *memTicketRepo) CreateIfAbsent(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.tickets[ticket.ConversationID]; ok {
		cp := *existing
		return &cp, nil
	}
	m.nextID++
	ticket.ID = "ticket-" + strconv.Itoa(m.nextID)
	cp := *ticket
	m.tickets[ticket.ConversationID] = &cp
	out := cp
	return &out, nil
}

func (m *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ticket := range m.tickets {
		if ticket.ID == id {
			cp := *ticket
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTicketRepo) GetByConversation(ctx context.Context, conversationID string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[conversationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *ticket
	return &cp, nil
}

func (m *memTicketRepo) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, escalationReason, resolutionNotes *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ticket := range m.tickets {
		if ticket.ID == id {
			ticket.Status = status
			if escalationReason != nil {
				ticket.EscalationReason = escalationReason
			}
			if resolutionNotes != nil {
				ticket.ResolutionNotes = resolutionNotes
			}
			return nil
		}
	}
	return pgx.ErrNoRows
}

type memMessageRepo struct {
	mu       sync.Mutex
	nextSeq  int64
	messages []*domain.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{}
}

func (m *memMessageRepo) Create(ctx context.Context, message *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	message.Seq = m.nextSeq
	message.ID = "msg-" + strconv.FormatInt(m.nextSeq, 10)
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	cp := *message
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *memMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, message := range m.messages {
		if message.ID == id {
			cp := *message
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memMessageRepo) GetByChannelMessageID(ctx context.Context, channel domain.Channel, channelMessageID string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, message := range m.messages {
		if message.Channel == channel && message.ChannelMessageID == channelMessageID {
			cp := *message
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memMessageRepo) ListByConversation(ctx context.Context, conversationID string, afterSeq int64, limit int) (*repository.MessagePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	page := &repository.MessagePage{}
	for _, message := range m.messages {
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

func (m *memMessageRepo) UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, message := range m.messages {
		if message.ID == id {
			message.DeliveryStatus = status
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memMessageRepo) byDirection(direction domain.MessageDirection) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, message := range m.messages {
		if message.Direction == direction {
			out = append(out, *message)
		}
	}
	return out
}

type memDeliveryRepo struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
}

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{}
}

func (m *memDeliveryRepo) CreateAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt.ID = "attempt-" + strconv.Itoa(len(m.attempts)+1)
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *memDeliveryRepo) ListByMessage(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, attempt := range m.attempts {
		if attempt.MessageID == messageID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

type memDeadLetterRepo struct {
	mu      sync.Mutex
	letters []domain.DeadLetter
}

func newMemDeadLetterRepo() *memDeadLetterRepo {
	return &memDeadLetterRepo{}
}

func (m *memDeadLetterRepo) Create(ctx context.Context, letter *domain.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	letter.ID = "dl-" + strconv.Itoa(len(m.letters)+1)
	letter.CreatedAt = time.Now()
	m.letters = append(m.letters, *letter)
	return nil
}

func (m *memDeadLetterRepo) List(ctx context.Context, limit, offset int) ([]domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DeadLetter, len(m.letters))
	copy(out, m.letters)
	return out, nil
}

func (m *memDeadLetterRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.letters)
}

// scriptedResponder returns queued results or errors in order, repeating the
// last entry once exhausted.
type scriptedResponder struct {
	mu      sync.Mutex
	results []responder.Result
	errs    []error
	calls   int
}

func (r *scriptedResponder) Respond(ctx context.Context, req responder.Request) (*responder.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		if len(r.errs) > 1 {
			r.errs = r.errs[1:]
		}
		if err != nil {
			return nil, err
		}
	}
	if len(r.results) == 0 {
		return &responder.Result{Text: "ok"}, nil
	}
	result := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return &result, nil
}
